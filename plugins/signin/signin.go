// Package signin is a scheduled-service plugin that signs in to configured
// sites once per day per trigger, with fire times spread across the day so
// the sites never see a synchronized burst.
package signin

import (
	"context"

	"mediarr/internal/scheduler"
	logx "mediarr/pkg/logx"
)

// SigninFunc performs one sign-in pass. The site chain owns the real
// implementation; the default just logs the invocation.
type SigninFunc func(ctx context.Context, args map[string]string) error

type Plugin struct {
	log    logx.Logger
	perDay int
	signin SigninFunc
}

type Option func(*Plugin)

// WithPerDay sets how many spread fire times the plugin declares (default 1).
func WithPerDay(n int) Option {
	return func(p *Plugin) {
		if n > 0 {
			p.perDay = n
		}
	}
}

// WithSigninFunc installs the real sign-in body.
func WithSigninFunc(fn SigninFunc) Option {
	return func(p *Plugin) {
		if fn != nil {
			p.signin = fn
		}
	}
}

func New(log logx.Logger, opts ...Option) *Plugin {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Plugin{log: log.With(logx.String("plugin", "signin")), perDay: 1}
	p.signin = func(ctx context.Context, args map[string]string) error {
		p.log.Info("signin pass (no site chain wired)", logx.Any("args", args))
		return nil
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Plugin) ID() string { return "signin" }

func (p *Plugin) Name() string { return "Auto Signin" }

// Services declares one daily cron trigger per fire time. All triggers share
// the "signin" logical id, so two fire times landing close together still
// run at most one sign-in pass at a time.
func (p *Plugin) Services() []scheduler.ServiceDecl {
	times := scheduler.SpreadTimes(p.perDay)
	decls := make([]scheduler.ServiceDecl, 0, len(times))
	for _, ft := range times {
		decls = append(decls, scheduler.ServiceDecl{
			ID:      "signin|" + ft.Suffix(),
			Name:    "Site signin",
			Trigger: ft.CronSpec(),
			Run:     scheduler.JobFunc(p.signin),
		})
	}
	return decls
}
