package mode

import (
	"context"
	"log/slog"
	"os"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/pipeline"
	"github.com/JSNN15/PPE-Detection-System/service/lgr"
)

// Validate checks the deployment configuration without opening any camera
// sources: the rule engine has already been constructed (construction is
// where rule validation happens), so what remains is the camera roster and
// the credential indirections it references.
func Validate(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	cameras, err := svcs.CfgSvc.RetrieveCameras()
	if err != nil {
		return model.GenError("validate_mode",
			err,
			map[string]interface{}{},
			"error retrieving cameras")
	}

	enabled := 0
	missingCreds := 0
	for _, camera := range cameras {
		if !camera.Enabled {
			lgr.Logger.Info(
				"camera disabled in configuration",
				slog.String("cameraID", camera.ID),
			)
			continue
		}

		enabled++
		if camera.PasswordEnv != "" {
			if _, ok := os.LookupEnv(camera.PasswordEnv); !ok {
				missingCreds++
				lgr.Logger.Warn(
					"camera credential env var is not set",
					slog.String("cameraID", camera.ID),
					slog.String("env", camera.PasswordEnv),
				)
			}
		}

		if !svcs.RulesSvc.HasZone(camera.Zone) {
			lgr.Logger.Warn(
				"camera zone has no zone profile, mandatory classes apply",
				slog.String("cameraID", camera.ID),
				slog.String("zone", camera.Zone),
			)
		}
	}

	ppe := svcs.CfgSvc.GetPPEConfig()
	lgr.Logger.Info(
		"configuration validated",
		slog.Int("cameras", len(cameras)),
		slog.Int("enabledCameras", enabled),
		slog.Int("missingCredentials", missingCreds),
		slog.Int("mandatoryClasses", len(ppe.Mandatory)),
		slog.Int("conditionalClasses", len(ppe.Conditional)),
		slog.Int("zones", len(ppe.Zones)),
	)

	if missingCreds > 0 {
		return model.GenError("validate_mode",
			nil,
			map[string]interface{}{"missing": missingCreds},
			"%d enabled cameras reference unset credential env vars", missingCreds)
	}

	return nil
}
