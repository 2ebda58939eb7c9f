package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/school-registry/internal/dto"
	"github.com/noah-isme/school-registry/internal/models"
	"github.com/noah-isme/school-registry/internal/repository"
	"github.com/noah-isme/school-registry/internal/service"
	"github.com/noah-isme/school-registry/pkg/config"
	"github.com/noah-isme/school-registry/pkg/database"
	"github.com/noah-isme/school-registry/pkg/logger"
)

type semesterStarter interface {
	StartSemester(ctx context.Context, actor models.Actor, req dto.StartSemesterRequest) (*dto.SeasonTerms, error)
}

type userCreator interface {
	Create(ctx context.Context, req service.CreateUserRequest) (*models.User, error)
}

// commandLine carries what the admin commands operate on.
type commandLine struct {
	db        *sqlx.DB
	semesters semesterStarter
	users     userCreator
	out       io.Writer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	validate := validator.New()
	workflow := service.WorkflowConfig{Isolation: cfg.Registration.IsolationLevel()}
	cli := &commandLine{
		db:        db,
		semesters: service.NewSeasonService(repository.NewSeasonRepository(db), db, nil, validate, logr, workflow),
		users:     service.NewUserService(repository.NewUserRepository(db), repository.NewFamilyRepository(db), validate, logr),
		out:       os.Stdout,
	}

	if err := cli.root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (cli *commandLine) root() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "School registry maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(cli.migrateCmd(), cli.semesterCmd(), cli.userCmd())
	return root
}

// systemActor is the identity admin commands act as.
var systemActor = models.Actor{Role: models.RoleAdmin}
