package verificationengine

import (
	"log/slog"

	httpadapter "wayfinder/contexts/community-mapping/verification-engine/adapters/http"
	"wayfinder/contexts/community-mapping/verification-engine/adapters/memory"
	"wayfinder/contexts/community-mapping/verification-engine/application/commands"
	"wayfinder/contexts/community-mapping/verification-engine/application/queries"
	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	"wayfinder/contexts/community-mapping/verification-engine/ports"
)

type Module struct {
	Handler      httpadapter.Handler
	Registration commands.RegistrationUseCase
	Store        *memory.Store
}

type Dependencies struct {
	Transactor ports.EntityTransactor
	Reader     ports.EntityReader
	Registry   ports.EntityRegistry
	Cache      ports.EntityCache
	Observer   ports.VoteObserver
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	verificationUseCase := commands.VerificationUseCase{
		Transactor: deps.Transactor,
		Cache:      deps.Cache,
		Observer:   deps.Observer,
		Clock:      deps.Clock,
		IDGen:      deps.IDGen,
		Logger:     deps.Logger,
	}
	entityQueries := queries.EntityQueries{
		Reader: deps.Reader,
	}
	registration := commands.RegistrationUseCase{
		Registry: deps.Registry,
		Clock:    deps.Clock,
		Logger:   deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Votes:        verificationUseCase,
			Registration: registration,
			Entities:     entityQueries,
			Logger:       deps.Logger,
		},
		Registration: registration,
	}
}

func NewInMemoryModule(seed []entities.VotableEntity, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Transactor: store,
		Reader:     store,
		Registry:   store,
		IDGen:      store,
		Logger:     logger,
	})
	module.Store = store
	return module
}
