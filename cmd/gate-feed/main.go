// gate-feed: streams a directory of still images to a framegate server
// as if it were a camera, and prints the decision for every frame.
package main

import (
	"bytes"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-framegate/internal/httpc"
	"github.com/teslashibe/go-framegate/internal/log"
	"github.com/teslashibe/go-framegate/pkg/protocol"
)

var (
	server    = flag.String("server", "localhost:8080", "framegate host:port")
	sessionID = flag.String("session", "", "Session id (empty lets the server pick one)")
	dir       = flag.String("dir", ".", "Directory of .jpg/.jpeg/.png images, sent in name order")
	interval  = flag.Duration("interval", 20*time.Millisecond, "Delay between frames")
	width     = flag.Int("width", 640, "Resize frames to this width (0 keeps the original size)")
	threshold = flag.Float64("threshold", -1, "Send a change threshold before streaming")
	reset     = flag.Bool("reset", false, "Reset the session before streaming")
	rest      = flag.Bool("rest", false, "Use the REST API instead of the websocket")
	verbose   = flag.Bool("v", false, "Print every decision, not just fires")
)

type summary struct {
	frames, fires, errors int
}

func main() {
	flag.Parse()
	log.Init("info")
	logger := log.Component("gate-feed")

	files, err := listImages(*dir)
	if err != nil {
		logger.Error("list images", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		logger.Error("no images found", "dir", *dir)
		os.Exit(1)
	}
	logger.Info("streaming", "frames", len(files), "server", *server, "rest", *rest)

	var sum summary
	if *rest {
		sum, err = streamREST(files)
	} else {
		sum, err = streamWS(files)
	}
	if err != nil {
		logger.Error("stream failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\nframes: %d  fires: %d  errors: %d\n", sum.frames, sum.fires, sum.errors)
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// loadFrame reads an image, optionally resizes it and re-encodes as JPEG.
func loadFrame(path string) ([]byte, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	if *width > 0 && img.Bounds().Dx() != *width {
		img = imaging.Resize(img, *width, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func report(i int, d *protocol.DecisionData, sum *summary) {
	sum.frames++
	if d.Fire {
		sum.fires++
	}
	if d.Fire || *verbose {
		mark := " "
		if d.Fire {
			mark = "*"
		}
		fmt.Printf("%s frame %4d  %-11s  confidence %5.1f  tracked %d\n",
			mark, i+1, d.SceneState, d.Confidence, d.TrackedObjectCount)
	}
}

func streamWS(files []string) (summary, error) {
	var sum summary

	u := url.URL{Scheme: "ws", Host: *server, Path: "/ws/camera"}
	if *sessionID != "" {
		u.Path += "/" + url.PathEscape(*sessionID)
	}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return sum, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer ws.Close()

	send := func(msg *protocol.Message, err error) error {
		if err != nil {
			return err
		}
		return write(ws, msg)
	}

	msg, err := read(ws)
	if err != nil {
		return sum, err
	}
	if s, err := msg.GetSessionData(); err == nil {
		fmt.Printf("session %s (created=%v)\n", s.SessionID, s.Created)
	}

	if *reset {
		if err := send(protocol.NewResetMessage()); err != nil {
			return sum, err
		}
	}
	if *threshold >= 0 {
		t := float32(*threshold)
		if err := send(protocol.NewConfigureMessage(protocol.ConfigureData{ChangeThreshold: &t})); err != nil {
			return sum, err
		}
	}

	start := time.Now()
	for i, path := range files {
		data, err := loadFrame(path)
		if err != nil {
			fmt.Printf("! %s: %v\n", filepath.Base(path), err)
			sum.errors++
			continue
		}

		ts := uint64(start.Add(time.Duration(i) * *interval).UnixMilli())
		if err := send(protocol.NewFrameMessage("jpeg", data, uint64(i+1), ts)); err != nil {
			return sum, err
		}

		// Replies arrive in order; errors from configure may come first.
		for {
			reply, err := read(ws)
			if err != nil {
				return sum, err
			}
			if reply.Type == protocol.TypeError {
				e, err := reply.GetErrorData()
				if err != nil {
					return sum, err
				}
				fmt.Printf("! frame %d: %s: %s\n", i+1, e.Code, e.Message)
				sum.errors++
				if e.FrameID != 0 {
					break
				}
				continue
			}
			if reply.Type == protocol.TypeDecision {
				d, err := reply.GetDecisionData()
				if err != nil {
					return sum, err
				}
				report(i, d, &sum)
				break
			}
		}

		time.Sleep(*interval)
	}
	return sum, nil
}

func streamREST(files []string) (summary, error) {
	var sum summary
	base := "http://" + *server + "/api/sessions"

	id := *sessionID
	var created protocol.SessionData
	err := httpc.PostJSON(base+"/", map[string]string{"id": id}, &created)
	var se *httpc.StatusError
	switch {
	case err == nil:
		id = created.SessionID
	case id != "" && errors.As(err, &se) && se.StatusCode == 409:
		// Already exists
	default:
		return sum, fmt.Errorf("create session: %w", err)
	}
	fmt.Printf("session %s\n", id)

	sessionURL := base + "/" + url.PathEscape(id)
	if *reset {
		if err := httpc.PostJSON(sessionURL+"/reset", struct{}{}, nil); err != nil {
			return sum, fmt.Errorf("reset: %w", err)
		}
	}
	if *threshold >= 0 {
		t := float32(*threshold)
		if err := httpc.PostJSON(sessionURL+"/configure", protocol.ConfigureData{ChangeThreshold: &t}, nil); err != nil {
			return sum, fmt.Errorf("configure: %w", err)
		}
	}

	start := time.Now()
	for i, path := range files {
		data, err := loadFrame(path)
		if err != nil {
			fmt.Printf("! %s: %v\n", filepath.Base(path), err)
			sum.errors++
			continue
		}

		var d protocol.DecisionData
		err = httpc.PostJSON(sessionURL+"/frames", map[string]any{
			"frame":        base64.StdEncoding.EncodeToString(data),
			"timestamp_ms": start.Add(time.Duration(i) * *interval).UnixMilli(),
			"frame_id":     i + 1,
		}, &d)
		if err != nil {
			fmt.Printf("! frame %d: %v\n", i+1, err)
			sum.errors++
			continue
		}
		report(i, &d, &sum)

		time.Sleep(*interval)
	}
	return sum, nil
}

func write(ws *websocket.Conn, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

func read(ws *websocket.Conn) (*protocol.Message, error) {
	ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return protocol.ParseMessage(data)
}
