package main

import (
	"context"
	"fmt"

	"learnlynk/internal/config"
	"learnlynk/internal/services"
	"learnlynk/pkg/notifier"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sweepCmd runs one pass over active time_based rules and exits. The
// engine has no internal scheduler, so cron jobs point here.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run time-based automation rules once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := config.InitLogger(cfg); err != nil {
			logrus.Warnf("init logger: %v", err)
		}
		appLogger := logrus.StandardLogger()

		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
		)
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}

		automation := services.NewAutomationService(db, appLogger)
		automation.SetActionTimeout(cfg.Automation.ActionTimeout)
		automation.SetStudentConverter(services.NewStudentService(db, appLogger))
		if cfg.Notifier.Enabled {
			automation.SetNotifier(notifier.NewClient(&notifier.Config{
				BaseURL:    cfg.Notifier.BaseURL,
				APIKey:     cfg.Notifier.APIKey,
				Timeout:    cfg.Notifier.Timeout,
				MaxRetries: cfg.Notifier.MaxRetries,
			}, appLogger))
		} else {
			automation.SetNotifier(notifier.NewLogSender(appLogger))
		}

		executed, err := automation.RunTimeBasedSweep(context.Background())
		if err != nil {
			return err
		}
		appLogger.Infof("sweep finished: %d rule runs executed", executed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
