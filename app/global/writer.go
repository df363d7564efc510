package global

import (
	"go-shipper/app/pkg/netfs"
	"go-shipper/app/pkg/scripts"
)

var (
	Writer  *netfs.Writer
	Scripts *scripts.Generator
)

func initWriter(conf *netfs.Config) (err error) {
	Writer = netfs.NewWriter(conf, Log)
	Scripts = scripts.NewGenerator(Writer, Log)
	return
}
