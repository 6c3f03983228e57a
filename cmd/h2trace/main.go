// Command h2trace replays a line-oriented frame script through the
// HTTP/2 connection state machine and logs every emitted state change.
//
// Script lines name a direction, a frame type, and frame attributes:
//
//	send settings
//	recv settings
//	send settings ack
//	recv settings ack
//	recv headers 1 end_stream
//	send headers 1
//	send data 1 len=2 end_stream
//	recv window_update 0 inc=1000
//	send goaway last=5 code=0
//	teardown
//
// Blank lines and lines starting with '#' are skipped. Protocol errors
// are logged and the replay continues: a rejected frame leaves the
// machine untouched.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/yourusername/h2core/pkg/h2core/http2"
)

func main() {
	role := flag.String("role", "server", "connection role: client or server")
	dev := flag.Bool("dev", true, "use the zap development encoder")
	flag.Parse()

	logger, err := buildLogger(*dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	r, err := parseRole(*role)
	if err != nil {
		logger.Fatal("bad role", zap.Error(err))
	}

	conn, err := http2.NewConnection(r, nil)
	if err != nil {
		logger.Fatal("building connection", zap.Error(err))
	}

	in := os.Stdin
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			logger.Fatal("opening script", zap.Error(err))
		}
		defer f.Close()
		in = f
	}

	if err := replay(conn, in, logger); err != nil {
		logger.Fatal("replay aborted", zap.Error(err))
	}
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func parseRole(s string) (http2.Role, error) {
	switch s {
	case "client":
		return http2.RoleClient, nil
	case "server":
		return http2.RoleServer, nil
	}
	return 0, errors.Errorf("unknown role %q", s)
}

func replay(conn *http2.Connection, in *os.File, logger *zap.Logger) error {
	sc := bufio.NewScanner(in)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if line == "teardown" {
			change := conn.Teardown()
			logChange(logger, "teardown", change)
			continue
		}

		dir, frame, err := parseLine(line)
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNo)
		}

		var change http2.StateChange
		if dir == "recv" {
			change, err = conn.ReceiveFrame(frame)
		} else {
			change, err = conn.SendFrame(frame)
		}
		if err != nil {
			logger.Warn("frame rejected",
				zap.Int("line", lineNo),
				zap.String("dir", dir),
				zap.Stringer("type", frame.Type),
				zap.Uint32("stream", frame.StreamID),
				zap.Error(err))
			continue
		}
		logChange(logger.With(
			zap.Int("line", lineNo),
			zap.String("dir", dir),
			zap.Stringer("type", frame.Type),
			zap.Uint32("stream", frame.StreamID)), "frame accepted", change)
	}
	return sc.Err()
}

func logChange(logger *zap.Logger, msg string, change http2.StateChange) {
	fields := []zap.Field{zap.Stringer("event", change.Kind)}
	switch change.Kind {
	case http2.StateChangeStreamCreated:
		fields = append(fields,
			zap.Uint32("created", change.StreamID),
			zap.Int32("localWindow", change.LocalInitialWindow),
			zap.Int32("remoteWindow", change.RemoteInitialWindow))
	case http2.StateChangeStreamClosed:
		fields = append(fields, zap.Uint32("closed", change.StreamID))
		if change.Reason != nil {
			fields = append(fields, zap.Stringer("reason", *change.Reason))
		}
	case http2.StateChangeStreamCreatedAndClosed:
		fields = append(fields, zap.Uint32("stream", change.StreamID))
	case http2.StateChangeFlowControl:
		fields = append(fields,
			zap.Int32("connInbound", change.ConnInbound),
			zap.Int32("connOutbound", change.ConnOutbound))
		if change.StreamWindow != nil {
			fields = append(fields,
				zap.Uint32("streamID", change.StreamWindow.StreamID),
				zap.Int32("streamInbound", change.StreamWindow.Inbound),
				zap.Int32("streamOutbound", change.StreamWindow.Outbound))
		}
	case http2.StateChangeBulkStreamClosure:
		fields = append(fields, zap.Uint32s("closed", change.Closed))
	case http2.StateChangeSettingsChanged:
		fields = append(fields, zap.Int32("windowDelta", change.WindowDelta))
	}
	logger.Info(msg, fields...)
}

// parseLine turns "recv data 1 len=100 end_stream" into a frame.
func parseLine(line string) (string, *http2.Frame, error) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return "", nil, errors.New("want: <send|recv> <type> [stream] [attrs]")
	}
	dir := parts[0]
	if dir != "send" && dir != "recv" {
		return "", nil, errors.Errorf("unknown direction %q", dir)
	}

	frame := &http2.Frame{}
	switch parts[1] {
	case "data":
		frame.Type = http2.FrameData
	case "headers":
		frame.Type = http2.FrameHeaders
		frame.Flags |= http2.FlagEndHeaders
	case "priority":
		frame.Type = http2.FramePriority
	case "rst_stream":
		frame.Type = http2.FrameRSTStream
	case "settings":
		frame.Type = http2.FrameSettings
	case "push_promise":
		frame.Type = http2.FramePushPromise
		frame.Flags |= http2.FlagEndHeaders
	case "ping":
		frame.Type = http2.FramePing
	case "goaway":
		frame.Type = http2.FrameGoAway
	case "window_update":
		frame.Type = http2.FrameWindowUpdate
	case "continuation":
		frame.Type = http2.FrameContinuation
	default:
		return "", nil, errors.Errorf("unknown frame type %q", parts[1])
	}

	for _, tok := range parts[2:] {
		if err := applyToken(frame, tok); err != nil {
			return "", nil, err
		}
	}
	return dir, frame, nil
}

func applyToken(frame *http2.Frame, tok string) error {
	switch tok {
	case "end_stream":
		frame.Flags |= http2.FlagEndStream
		return nil
	case "end_headers":
		frame.Flags |= http2.FlagEndHeaders
		return nil
	case "no_end_headers":
		frame.Flags &^= http2.FlagEndHeaders
		return nil
	case "ack":
		frame.Flags |= http2.FlagAck
		return nil
	}

	if key, val, ok := strings.Cut(tok, "="); ok {
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return errors.Wrapf(err, "attribute %q", tok)
		}
		switch key {
		case "len":
			frame.Data = make([]byte, n)
		case "inc":
			frame.WindowIncrement = uint32(n)
		case "last":
			frame.LastStreamID = uint32(n)
		case "code":
			frame.ErrCode = http2.ErrorCode(n)
		case "promised":
			frame.PromisedStreamID = uint32(n)
		case "iws":
			frame.Settings = append(frame.Settings,
				http2.Setting{ID: http2.SettingInitialWindowSize, Value: uint32(n)})
		case "max_streams":
			frame.Settings = append(frame.Settings,
				http2.Setting{ID: http2.SettingMaxConcurrentStreams, Value: uint32(n)})
		default:
			return errors.Errorf("unknown attribute %q", key)
		}
		return nil
	}

	// a bare integer is the stream ID
	n, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return errors.Errorf("unexpected token %q", tok)
	}
	frame.StreamID = uint32(n)
	return nil
}
