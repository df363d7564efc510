package scripts

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"go-shipper/app/model"
	"go-shipper/app/pkg/netfs"
)

var ErrScripts = errs.Class("scripts")

// Per-environment deploy and rollback scripts invoked by the remote web
// server. The bodies are opaque to the orchestrator, it only materializes
// them at project creation and later calls them over HTTP.
var deployTmpl = template.Must(template.New("deploy").Parse(strings.TrimSpace(`
#!/usr/bin/env bash
# generated for project {{.Project.Name}} ({{.Environment.Slug}})
set -euo pipefail
cd "{{.Binding.ProjectPath}}"
git fetch origin "{{.Binding.Branch}}"
git checkout -f "origin/{{.Binding.Branch}}"
echo "DEPLOYMENT_STATUS=success"
echo "Run ID: $(date +%Y%m%d_%H%M%S)"
git rev-parse HEAD
`) + "\n"))

var rollbackTmpl = template.Must(template.New("rollback").Parse(strings.TrimSpace(`
#!/usr/bin/env bash
# generated for project {{.Project.Name}} ({{.Environment.Slug}})
set -euo pipefail
cd "{{.Binding.ProjectPath}}"
git checkout -f "$1"
echo "DEPLOYMENT_STATUS=success"
git rev-parse HEAD
`) + "\n"))

type Context struct {
	Project     *model.Project
	Environment *model.Environment
	Binding     *model.EnvironmentBinding
}

type Generator struct {
	writer *netfs.Writer
	log    *zap.Logger
}

func NewGenerator(writer *netfs.Writer, log *zap.Logger) *Generator {
	return &Generator{writer: writer, log: log}
}

// Materialize renders and places both scripts for one binding. Errors are
// reported but deliberately non-fatal to project creation: a missing script
// surfaces later as a transport failure on the first deploy, which is
// diagnosable, while a failed project creation is not.
func (g *Generator) Materialize(ctx context.Context, sc Context) error {
	var group errs.Group
	group.Add(g.write(ctx, sc, deployTmpl, targetPath(sc, "deploy.sh")))
	group.Add(g.write(ctx, sc, rollbackTmpl, targetPath(sc, "rollback.sh")))
	return group.Err()
}

func (g *Generator) write(ctx context.Context, sc Context, tmpl *template.Template, target string) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, sc); err != nil {
		return ErrScripts.Wrap(err)
	}
	n, err := g.writer.WriteArtifact(ctx, target, buf.Bytes())
	if err != nil {
		g.log.Error("script materialization failed",
			zap.String("target", target),
			zap.Int64("project_id", sc.Project.ID),
			zap.String("environment", sc.Environment.Slug),
			zap.Error(err))
		return ErrScripts.Wrap(err)
	}
	g.log.Info("script materialized",
		zap.String("target", target), zap.Int("bytes", n))
	return nil
}

// targetPath prefers the environment's network root when configured so the
// script lands on the shared filesystem the web server serves from.
func targetPath(sc Context, name string) string {
	if sc.Environment.NetworkPath != "" {
		return sc.Environment.NetworkPath + `\` + sc.Project.Name + `\` + name
	}
	base := strings.TrimRight(sc.Binding.ProjectPath, "/")
	if base == "" {
		base = strings.TrimRight(sc.Environment.BasePath, "/") + "/" + sc.Project.Name
	}
	return base + "/" + name
}
