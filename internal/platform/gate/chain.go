// Package gate runs an ordered list of request stages in front of the
// application routes. Each stage inspects the request and a per-request
// State, then either lets the request continue to the next stage or halts
// it after writing a terminal response (usually a redirect).
package gate

import (

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Result is a stage's decision.
type Result int

const (
	// Continue passes the request to the next stage, or to the route once
	// every stage has continued.
	Continue Result = iota
	// Halt ends the request. The stage has already written the response.
	Halt
)

// TokenStatus records what the deep-link token stage concluded.
type TokenStatus int

const (
	TokenUnchecked TokenStatus = iota
	// TokenNotApplicable: no key configured or the route is not eligible.
	TokenNotApplicable
	TokenAuthorized
	// TokenRejected: the route is eligible but verification failed.
	TokenRejected
	// TokenRedirected: the token was moved into a cookie and the request
	// redirected.
	TokenRedirected
)

func (s TokenStatus) String() string {
	switch s {
	case TokenNotApplicable:
		return "not_applicable"
	case TokenAuthorized:
		return "authorized"
	case TokenRejected:
		return "rejected"
	case TokenRedirected:
		return "redirected"
	default:
		return "unchecked"
	}
}

// AuthMode names how a request was authorized.
type AuthMode string

const (
	ModeNone    AuthMode = ""
	ModeToken   AuthMode = "token"
	ModeSession AuthMode = "session"
)

// State is the mutable per-request context shared by the stages.
type State struct {
	Token TokenStatus
	Mode  AuthMode
	// Principal is the session subject, empty for token-authorized requests.
	Principal string
}

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Run(c echo.Context, st *State) (Result, error)
}

type funcStage struct {
	name string
	fn   func(c echo.Context, st *State) (Result, error)
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Run(c echo.Context, st *State) (Result, error) { return s.fn(c, st) }

// StageFunc adapts a function to a Stage.
func StageFunc(name string, fn func(c echo.Context, st *State) (Result, error)) Stage {
	return funcStage{name: name, fn: fn}
}

// echoStateKey is the echo.Context key holding *State.
const echoStateKey = "gate_state"

// Chain runs stages in order.
type Chain struct {
	stages  []Stage
	skipper func(c echo.Context) bool
	onHalt  func(stage string)
	logger  zerolog.Logger
}

// NewChain creates a chain over stages, run in the given order.
func NewChain(logger zerolog.Logger, stages ...Stage) *Chain {
	return &Chain{stages: stages, logger: logger}
}

// WithSkipper sets a predicate for requests that bypass every stage.
func (ch *Chain) WithSkipper(fn func(c echo.Context) bool) *Chain {
	ch.skipper = fn
	return ch
}

// OnHalt registers fn to be called with the stage name whenever a stage
// halts a request.
func (ch *Chain) OnHalt(fn func(stage string)) *Chain {
	ch.onHalt = fn
	return ch
}

// Names returns the stage names in run order.
func (ch *Chain) Names() []string {
	names := make([]string, len(ch.stages))
	for i, s := range ch.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes the stages against c and returns the final result.
func (ch *Chain) Run(c echo.Context, st *State) (Result, error) {
	for _, s := range ch.stages {
		res, err := s.Run(c, st)
		if err != nil {
			return Halt, err
		}
		if res == Halt {
			ch.logger.Debug().
				Str("stage", s.Name()).
				Str("path", c.Request().URL.Path).
				Str("token", st.Token.String()).
				Msg("request halted")
			if ch.onHalt != nil {
				ch.onHalt(s.Name())
			}
			return Halt, nil
		}
	}
	return Continue, nil
}

// Middleware adapts the chain to echo. The State is available to handlers
// through StateFrom.
func (ch *Chain) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if ch.skipper != nil && ch.skipper(c) {
				return next(c)
			}

			st := &State{}
			c.Set(echoStateKey, st)

			res, err := ch.Run(c, st)
			if err != nil || res == Halt {
				return err
			}
			return next(c)
		}
	}
}

// StateFrom returns the request's State, or nil outside the chain.
func StateFrom(c echo.Context) *State {
	st, _ := c.Get(echoStateKey).(*State)
	return st
}
