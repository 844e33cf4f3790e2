package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/auth"
	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/core"
	"github.com/ebogdum/bucketfs/core/log"
)

const (
	wsUploadDone   = "done"
	wsChunkSize    = 64 * 1024
	wsControlWait  = 5 * time.Second
	wsMaxFrameSize = 16 << 20
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  wsChunkSize,
	WriteBufferSize: wsChunkSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// UploadAck is sent as a text message once an upload is committed
type UploadAck struct {
	Path string `json:"path"`
	ETag string `json:"etag"`
	Size int64  `json:"size"`
}

// V1WebSocketTransfer handles websocket file transfers on /v1/ws/files/{path}.
// Query param mode=download|upload controls transfer direction.
//
// Downloads arrive as binary messages followed by a normal close. Uploads
// are sent as binary messages ended by the text message "done", which
// commits the file and is answered with an UploadAck. A connection that ends
// before "done" discards the upload. If-Match applies to both directions.
func V1WebSocketTransfer(engine *core.Engine, authorizer auth.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"))
		if pathInfo.IsInvalid {
			SendErrorResponse(w, logger, &customError{message: "invalid path"}, http.StatusBadRequest)
			return
		}

		if pathInfo.IsDirectory {
			SendErrorResponse(w, logger, &customError{message: "websocket transfer requires a file path"}, http.StatusBadRequest)
			return
		}

		mode := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode")))
		if mode == "" {
			mode = "download"
		}

		var perm auth.PermissionType
		switch mode {
		case "download":
			perm = auth.ReadPerm
		case "upload":
			perm = auth.WritePerm
		default:
			SendErrorResponse(w, logger, &customError{message: "mode must be one of: download, upload"}, http.StatusBadRequest)
			return
		}

		if !authorize(w, r, authorizer, pathInfo.FullPath, perm, logger) {
			return
		}

		token := ifMatch(r)

		// Open the source before upgrading so that a missing file or a stale
		// token is still reported with a proper status code.
		var reader *core.ReadHandle
		if mode == "download" {
			var err error
			if token != "" {
				reader, err = engine.ReadIfMatch(r.Context(), pathInfo.FullPath, token)
			} else {
				reader, err = engine.OpenReadHandle(r.Context(), pathInfo.FullPath)
			}
			if err != nil {
				SendErrorResponse(w, logger, err, http.StatusInternalServerError)
				return
			}
			defer reader.Close()
		}

		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Failed to upgrade websocket", zap.Error(err))
			return
		}
		defer conn.Close()

		if mode == "download" {
			streamDownload(conn, reader, logger)
			return
		}
		receiveUpload(r, conn, engine, pathInfo.FullPath, token, logger)
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(wsControlWait))
}

func streamDownload(conn *websocket.Conn, reader io.Reader, logger *zap.Logger) {
	buf := make([]byte, wsChunkSize)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if err := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
				logger.Warn("Failed writing websocket download chunk", zap.Error(err))
				return
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				closeWith(conn, websocket.CloseNormalClosure, "download complete")
				return
			}

			logger.Warn("Failed reading file for websocket download", zap.Error(readErr))
			closeWith(conn, websocket.CloseInternalServerErr, "file read failed")
			return
		}
	}
}

// errUploadInterrupted ends an upload whose client went away without a
// normal close.
var errUploadInterrupted = errors.New("upload interrupted")

func receiveUpload(r *http.Request, conn *websocket.Conn, engine *core.Engine, path string, expected backends.VersionToken, logger *zap.Logger) {
	conn.SetReadLimit(wsMaxFrameSize)

	var size int64
	token, err := engine.WriteWithToken(r.Context(), path, expected, func(w io.Writer) error {
		for {
			messageType, data, readErr := conn.ReadMessage()
			if readErr != nil {
				return fmt.Errorf("%w: %v", errUploadInterrupted, readErr)
			}

			if messageType == websocket.TextMessage {
				if string(data) == wsUploadDone {
					return nil
				}
				continue
			}

			n, err := w.Write(data)
			size += int64(n)
			if err != nil {
				return err
			}
		}
	})

	if err != nil {
		logger.Warn("Websocket upload failed", log.Path("path", path), zap.Error(err))
		if errors.Is(err, errUploadInterrupted) {
			return
		}
		status, code := errorStatus(err, http.StatusInternalServerError)
		closeCode := websocket.CloseInternalServerErr
		if status < http.StatusInternalServerError {
			closeCode = websocket.ClosePolicyViolation
		}
		closeWith(conn, closeCode, code)
		return
	}

	ack, _ := json.Marshal(UploadAck{Path: path, ETag: string(token), Size: size})
	if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
		logger.Warn("Failed writing websocket upload ack", zap.Error(err))
	}
	closeWith(conn, websocket.CloseNormalClosure, "upload complete")

	logger.Info("File uploaded over websocket",
		log.Path("path", path),
		zap.Int64("size", log.SanitizeSize(size)))
}
