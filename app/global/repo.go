package global

import "go-shipper/app/pkg/repo"

var Repo *repo.Resolver

func initRepo(conf *repo.Config) (err error) {
	Repo = repo.NewResolver(conf)
	return
}
