// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/SeekIn/services/evolution/watch"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const streamWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// SnapshotSubscriber publishes cache snapshots.
type SnapshotSubscriber interface {
	StateSource
	Subscribe() (<-chan watch.Snapshot, func())
}

// StreamMessage is one websocket frame of the state stream.
type StreamMessage struct {
	// Action is "snapshot" for every frame.
	Action   string         `json:"action"`
	Snapshot watch.Snapshot `json:"snapshot"`
}

// StreamState pushes the cached documents to a websocket client: the
// current snapshot on connect, then every reload. Client messages are
// ignored; the stream ends when the client disconnects.
func StreamState(src SnapshotSubscriber) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		streamID := uuid.NewString()
		slog.Info("State stream client connected", "stream_id", streamID)

		updates, cancel := src.Subscribe()
		defer cancel()

		// Reads only detect disconnects.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if snap := src.Snapshot(); snap.Current != nil {
			if err := sendSnapshot(ws, snap); err != nil {
				return
			}
		}

		for {
			select {
			case <-closed:
				slog.Info("State stream client disconnected", "stream_id", streamID)
				return
			case <-c.Request.Context().Done():
				return
			case snap := <-updates:
				if err := sendSnapshot(ws, snap); err != nil {
					return
				}
			}
		}
	}
}

func sendSnapshot(ws *websocket.Conn, snap watch.Snapshot) error {
	if err := ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	err := ws.WriteJSON(StreamMessage{Action: "snapshot", Snapshot: snap})
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}
