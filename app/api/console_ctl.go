package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"go-shipper/app/global"
	"go-shipper/app/internal/errcode"
	"go-shipper/app/internal/response"
	"go-shipper/app/service/deploy"
)

// ConsoleCtl streams the attempt-scoped log over a websocket: full replay
// of existing records first, then live tailing until the attempt reaches a
// terminal status.
type ConsoleCtl struct {
	service *deploy.Service
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (ctl *ConsoleCtl) Stream(ctx *gin.Context) {
	deploymentId, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	if _, err = ctl.service.Detail(deploymentId); err != nil {
		response.Fail(ctx, err)
		return
	}
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// drain client frames so close handshakes are noticed
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var lastId int64
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		rows, err := ctl.service.Records(deploymentId, lastId)
		if err != nil {
			global.Log.Error("console record query failed", zap.Error(err), zap.Int64("deployment_id", deploymentId))
			return
		}
		for _, row := range rows {
			if err = conn.WriteJSON(row); err != nil {
				return
			}
			lastId = row.ID
		}
		if len(rows) == 0 {
			current, err := ctl.service.Detail(deploymentId)
			if err != nil {
				return
			}
			if current.Status.Terminal() {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(current.Status)))
				return
			}
		}
		select {
		case <-clientGone:
			return
		case <-ticker.C:
		}
	}
}
