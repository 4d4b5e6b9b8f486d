package app

import (
	"fmt"

	"github.com/tabwave/stepgate/internal/gateway/notify"
	"github.com/tabwave/stepgate/internal/gateway/plugin"
	"github.com/tabwave/stepgate/internal/gateway/plugin/defaults"
	"github.com/tabwave/stepgate/internal/gateway/store/drivers/memory"
	"github.com/tabwave/stepgate/internal/gateway/store/drivers/redis"
	"github.com/tabwave/stepgate/internal/gateway/store/drivers/sqlite"
)

// initLedger builds the datastore backend named in configuration.
func (app *Application) initLedger() error {
	switch app.cfg.Datastore {
	case "memory":
		app.ledger = memory.NewLedger()

	case "sqlite":
		ledger, err := sqlite.NewLedger(app.cfg.SqliteFile)
		if err != nil {
			return fmt.Errorf("app: opening sqlite ledger: %w", err)
		}
		if err := ledger.ApplyMigrations(); err != nil {
			_ = ledger.Close()
			return fmt.Errorf("app: migrating sqlite ledger: %w", err)
		}
		app.ledger = ledger

	case "redis":
		app.ledger = redis.NewLedger(
			app.cfg.RedisAddr, app.cfg.RedisPassword, app.cfg.RedisDB,
			2*app.cfg.LedgerRetention)

	default:
		return fmt.Errorf("app: unknown datastore %q", app.cfg.Datastore)
	}
	return nil
}

// buildRegistry constructs and registers every built-in plugin whose
// configuration is present. Registration is explicit: what is not
// listed here does not exist.
func (app *Application) buildRegistry() (*plugin.Registry, error) {
	cfg := app.cfg
	registry := plugin.NewRegistry(app.logger, cfg.Settings)

	mailer := app.buildNotifier("mail")

	// Finders.
	if err := registry.Register(defaults.NewAllowlistFinder(cfg.Settings.ForPlugin("Allowlist"))); err != nil {
		return nil, err
	}
	if err := registry.Register(defaults.NewEmailDomainFinder(cfg.Settings.ForPlugin("EmailDomain"))); err != nil {
		return nil, err
	}
	if sqlSettings := cfg.Settings.ForPlugin("SQL"); sqlSettings.GetString("dsn", "") != "" {
		finder, err := defaults.NewSQLFinder(sqlSettings)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(finder); err != nil {
			return nil, err
		}
	}

	// Challenge methods.
	emailSettings := cfg.Settings.ForPlugin("Email")
	if emailSettings.GetString("salt", "") != "" {
		method, err := defaults.NewEmailMethod(app.ledger, mailer, emailSettings)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(method); err != nil {
			return nil, err
		}
	}

	totpSettings := cfg.Settings.ForPlugin("TOTP")
	totp := defaults.NewTOTPMethod(defaults.NewSettingsSecretSource(totpSettings), mailer, totpSettings)
	if err := registry.Register(totp); err != nil {
		return nil, err
	}

	smsSettings := cfg.Settings.ForPlugin("SMS")
	if smsSettings.GetString("salt", "") != "" {
		method, err := defaults.NewSMSMethod(
			app.ledger, app.buildNotifier("sms"),
			defaults.NewSettingsPhoneResolver(smsSettings), smsSettings)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(method); err != nil {
			return nil, err
		}
	}

	// Optional registrar.
	if cfg.RegistrarName != "" {
		registrarSettings := cfg.Settings.ForPlugin(cfg.RegistrarName)
		if registrarSettings.GetString("to", "") != "" {
			registrar, err := defaults.NewMailRegistrar(mailer, registrarSettings)
			if err != nil {
				return nil, err
			}
			if err := registry.Register(registrar); err != nil {
				return nil, err
			}
		}
	}

	// Optional per-host settings overlay.
	if cfg.SettingsName != "" {
		if err := registry.Register(defaults.NewHostSettings(cfg.Settings.ForPlugin(cfg.SettingsName))); err != nil {
			return nil, err
		}
	}

	// Templates.
	template, err := defaults.NewBasicTemplate(cfg.Settings.ForPlugin("Basic"))
	if err != nil {
		return nil, err
	}
	if err := registry.Register(template); err != nil {
		return nil, err
	}

	registry.Seal()
	return registry, nil
}

// buildNotifier returns the SMTP notifier when mail is configured,
// otherwise a log-only notifier so development setups work without a
// relay.
func (app *Application) buildNotifier(channel string) notify.Notifier {
	if app.cfg.SMTPAddr == "" {
		app.logger.Warn("no smtp relay configured, notifications go to the log only", "channel", channel)
		return &notify.LogNotifier{Log: app.logger, Channel: channel}
	}

	n, err := notify.NewSMTPNotifier(app.cfg.SMTPAddr, app.cfg.SMTPFrom, app.cfg.SMTPUsername, app.cfg.SMTPPassword)
	if err != nil {
		app.logger.Warn("smtp configuration incomplete, notifications go to the log only",
			"channel", channel, "error", err)
		return &notify.LogNotifier{Log: app.logger, Channel: channel}
	}
	return n
}
