package api

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wuzfei/cfgstruct/cfgstruct"
	"golang.org/x/sync/errgroup"

	"go-shipper/app/global"
	"go-shipper/app/internal/validate"
	"go-shipper/app/service/deploy"
	"go-shipper/app/service/environment"
	"go-shipper/app/service/pipeline"
	"go-shipper/app/service/project"
	"go-shipper/app/service/schedule"
	"go-shipper/app/service/secscan"
	"go-shipper/app/service/user"
)

type Server struct {
	config *global.Config
	server http.Server

	userService        *user.Service
	projectService     *project.Service
	environmentService *environment.Service
	deployService      *deploy.Service
	scheduleService    *schedule.Service
	gate               *secscan.Gate
}

func NewServer(conf *global.Config) *Server {
	gate := secscan.NewGate(global.DB, global.Log, nil)
	return &Server{
		config:             conf,
		userService:        user.NewService(global.Log, global.DB, global.Jwt),
		projectService:     project.NewService(global.Log, global.DB, global.Scripts),
		environmentService: environment.NewService(global.Log, global.DB),
		deployService: deploy.NewService(global.DB, global.Log,
			pipeline.NewTracker(global.DB, global.Log),
			gate,
			deploy.NewClient(&conf.Remote, global.Log),
			deploy.NewNotifier(global.DB, global.Log),
			global.Repo),
		scheduleService: schedule.NewService(global.DB, global.Log),
		gate:            gate,
	}
}

// Deployer exposes the orchestrator for the trigger worker.
func (s *Server) Deployer() *deploy.Service {
	return s.deployService
}

func (s *Server) Run(ctx context.Context) error {
	if cfgstruct.DefaultsType() == cfgstruct.DefaultsRelease {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.Default()
	ApiRoutes(engine, s)
	if err := validate.RegisterValidation(); err != nil {
		return err
	}
	s.server.Handler = engine

	listener, err := net.Listen("tcp", s.config.Api.Address)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return s.server.Shutdown(context.Background())
	})
	group.Go(func() error {
		defer cancel()
		_err := s.server.Serve(listener)
		if errors.Is(_err, http.ErrServerClosed) {
			_err = nil
		}
		return _err
	})
	return group.Wait()
}
