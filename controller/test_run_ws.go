package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/qaforge/convotest/common/ctxkey"
	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/middleware"
	"github.com/qaforge/convotest/qa/event"
	qamodel "github.com/qaforge/convotest/qa/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// ExecuteTestRunWS is ExecuteTestRun over a websocket. The test id comes
// from the testId query parameter. The run stops when the client closes
// the socket.
func ExecuteTestRunWS(c *gin.Context) {
	testID := c.Query("testId")
	if testID == "" {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("testId is required"))
		return
	}

	r := newRunner(c)
	prepared, err := r.Prepare(gmw.Ctx(c), testID, c.GetString(ctxkey.OrgId), c.GetString(ctxkey.ProfileId))
	if err != nil {
		middleware.AbortWithMappedError(c, err)
		return
	}

	lg := logger.FromContext(c).With(zap.String("run_id", prepared.Run.ID))
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		lg.Warn("websocket upgrade failed", zap.Error(err))
		prepared.Run.Status = qamodel.RunStatusFailed
		if err = currentEngine().Store.UpdateRun(gmw.Ctx(c), prepared.Run); err != nil {
			lg.Error("mark abandoned run failed", zap.Error(err))
		}
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()
	sink := event.NewSink(event.NewWSWriter(conn), 0)

	// the client sends nothing; reading only detects the close
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				sink.Abort(errors.Wrap(qamodel.ErrSinkClosed, err.Error()))
				cancel()
				return
			}
		}
	}()

	streamRun(ctx, r, prepared, sink)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
