package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/uptrace/bun"
)

// Service wires every component of the package over one database
type Service struct {
	Config       Config
	Logger       Logger
	Repo         RepositoryManager
	Hasher       *BcryptHasher
	Tokens       *TokenServiceImpl
	Provider     *AccountProvider
	Auther       *Auther
	HTTP         *RouteAuthenticator
	Lifecycle    AccountStateMachine
	AccountSvc   *AccountService
	Controller   *AuthController
	Metrics      *Metrics
	ActivitySink ActivitySink
}

type serviceOptions struct {
	logger   Logger
	metrics  *Metrics
	clock    func() time.Time
	notifier PasswordResetNotifier
	sink     ActivitySink
	debug    bool
}

// ServiceOption customizes NewService
type ServiceOption func(*serviceOptions)

func WithServiceLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = logger }
}

func WithServiceMetrics(m *Metrics) ServiceOption {
	return func(o *serviceOptions) { o.metrics = m }
}

// WithServiceClock drives token issue and verification from clock
func WithServiceClock(clock func() time.Time) ServiceOption {
	return func(o *serviceOptions) { o.clock = clock }
}

func WithServiceNotifier(n PasswordResetNotifier) ServiceOption {
	return func(o *serviceOptions) { o.notifier = n }
}

func WithServiceActivitySink(sink ActivitySink) ServiceOption {
	return func(o *serviceOptions) { o.sink = sink }
}

func WithServiceDebug(debug bool) ServiceOption {
	return func(o *serviceOptions) { o.debug = debug }
}

// NewService builds the repositories, token service, authenticator,
// gate and controller described by cfg.
func NewService(db *bun.DB, cfg Config, opts ...ServiceOption) *Service {
	o := &serviceOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	logger := o.logger
	if logger == nil {
		logger = newDefaultLogger()
	}
	sink := o.sink
	if sink == nil {
		sink = LoggingActivitySink(logger)
	}

	repo := NewRepositoryManager(db)
	repo.MustValidate()

	hasher := NewBcryptHasher(cfg.GetBcryptCost())
	tokens := NewTokenServiceFromConfig(cfg, WithTokenClock(o.clock), WithTokenLogger(logger))
	provider := NewAccountProvider(repo.Accounts(), repo.Credentials(), hasher).WithLogger(logger)

	auther := NewAuthenticator(provider, repo.Accounts(), tokens, cfg).
		WithLogger(logger).
		WithActivitySink(sink).
		WithMetrics(o.metrics)

	httpAuth := NewHTTPAuthenticator(auther, cfg).
		WithLogger(logger).
		WithMetrics(o.metrics).
		WithClock(o.clock)

	lifecycle := NewAccountStateMachine(repo.Accounts(),
		WithStateMachineClock(o.clock),
		WithStateMachineActivitySink(sink),
		WithStateMachineLogger(logger),
	)

	accountSvc := NewAccountService(repo.Accounts(), lifecycle).
		WithActivitySink(sink).
		WithLogger(logger)

	controller := NewAuthController(
		WithControllerLogger(logger),
		WithControllerDebug(o.debug),
		WithControllerBasePath(cfg.GetBasePath()),
		WithRouteAuthenticator(httpAuth),
		WithRegisterHandler(NewRegisterAccountHandler(repo, hasher).WithActivitySink(sink).WithLogger(logger)),
		WithUpdatePasswordHandler(NewUpdatePasswordHandler(repo, hasher).WithActivitySink(sink).WithLogger(logger)),
		WithPasswordResetHandler(NewRequestPasswordResetHandler(repo.Credentials(), o.notifier).WithActivitySink(sink).WithLogger(logger)),
		WithAccountService(accountSvc),
	)

	return &Service{
		Config:       cfg,
		Logger:       logger,
		Repo:         repo,
		Hasher:       hasher,
		Tokens:       tokens,
		Provider:     provider,
		Auther:       auther,
		HTTP:         httpAuth,
		Lifecycle:    lifecycle,
		AccountSvc:   accountSvc,
		Controller:   controller,
		Metrics:      o.metrics,
		ActivitySink: sink,
	}
}

// Mount creates the base path group on app, puts the gate in front of
// it and registers the auth routes. Further protected routes can be
// added to the returned router.
func (s *Service) Mount(app *fiber.App) fiber.Router {
	base := strings.TrimSuffix(s.Config.GetBasePath(), "/")
	api := app.Group(base)
	api.Use(s.HTTP.ProtectedRoute())
	s.Controller.RegisterRoutes(api)
	return api
}

// ErrorHandler renders errors as problem documents
func (s *Service) ErrorHandler() fiber.ErrorHandler {
	return s.HTTP.ErrorHandler
}
