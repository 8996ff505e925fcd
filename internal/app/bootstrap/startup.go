// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"

	orgunitstore "github.com/dalemusser/taskhub/internal/app/store/orgunits"
	userstore "github.com/dalemusser/taskhub/internal/app/store/users"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections
// and schema setup are complete, but before the HTTP handler is built.
// TaskHub uses it to make sure a fresh deployment is usable: a program
// admin account and a root org unit exist when configured.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.TaskHubMongoDatabase

	if appCfg.AdminEmail != "" {
		users := userstore.New(db)
		_, err := users.GetByEmail(ctx, appCfg.AdminEmail)
		switch {
		case err == nil:
			// Already present; leave the account alone.
		case errors.Is(err, userstore.ErrNotFound):
			u, err := users.Create(ctx, appCfg.AdminName, appCfg.AdminEmail, appCfg.AdminPassword, models.RoleProgramAdmin)
			if err != nil {
				return err
			}
			logger.Info("bootstrapped program admin",
				zap.String("email", u.Email),
				zap.String("user_id", u.ID.Hex()))
		default:
			return err
		}
	}

	if appCfg.RootOrgUnitName != "" {
		units := orgunitstore.New(db)
		unit, err := units.Create(ctx, appCfg.RootOrgUnitName, nil)
		switch {
		case err == nil:
			logger.Info("bootstrapped root org unit",
				zap.String("name", unit.Name),
				zap.String("org_unit_id", unit.ID.Hex()))
		case errors.Is(err, orgunitstore.ErrDuplicateName):
			// Already present.
		default:
			return err
		}
	}

	return nil
}
