package global

import (
	errs2 "github.com/zeebo/errs"

	"go-shipper/app/pkg/db"
	"go-shipper/app/pkg/jwt"
	"go-shipper/app/pkg/log"
	"go-shipper/app/pkg/netfs"
	"go-shipper/app/pkg/repo"
	"go-shipper/app/service/deploy"
	"go-shipper/app/service/schedule"
)

var Cfg *Config

type Config struct {
	Api struct {
		Address string `help:"listen address" devDefault:"0.0.0.0:8989" default:"0.0.0.0:8080"`
	}
	Db     db.Config
	Repo   repo.Config
	JWT    jwt.Config
	Log    log.Config
	Netfs  netfs.Config
	Remote deploy.Config
	Worker schedule.Config
}

func (c *Config) Init() {
	Cfg = c
	errs := errs2.Group{}
	errs.Add(
		initLog(&c.Log),
		initDB(&c.Db),
		initJwt(&c.JWT),
		initRepo(&c.Repo),
		initWriter(&c.Netfs),
	)
	if errs.Err() != nil {
		panic(errs.Err())
	}
}
