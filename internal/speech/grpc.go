package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Speech service methods. Messages are well-known protobuf types so no
// generated stubs are needed on either side.
const (
	speechService = "astrocare.speech.v1.Speech"
	speakMethod   = "/" + speechService + "/Speak"
	voicesMethod  = "/" + speechService + "/Voices"
	listenMethod  = "/" + speechService + "/Listen"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

var (
	_ Synthesizer = (*GrpcSpeech)(nil)
	_ Recognizer  = (*GrpcSpeech)(nil)
)

// GrpcSpeech talks to an external speech service over gRPC and serves as
// both Synthesizer and Recognizer.
type GrpcSpeech struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// GrpcSpeechConfig holds configuration for the speech client.
type GrpcSpeechConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// DefaultGrpcSpeechConfig returns default configuration for addr.
func DefaultGrpcSpeechConfig(addr string) GrpcSpeechConfig {
	return GrpcSpeechConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcSpeech connects to the speech service at addr.
func NewGrpcSpeech(addr string, logger *slog.Logger) (*GrpcSpeech, error) {
	return NewGrpcSpeechWithConfig(DefaultGrpcSpeechConfig(addr), logger)
}

// NewGrpcSpeechWithConfig connects using cfg and fails fast if the service
// does not become ready within cfg.ConnectTimeout.
func NewGrpcSpeechWithConfig(cfg GrpcSpeechConfig, logger *slog.Logger) (*GrpcSpeech, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("speech service address is required")
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, cfg.DialOptions...)

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client for %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("speech service at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to speech service", "address", cfg.Address)

	return &GrpcSpeech{
		conn:   conn,
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcSpeech) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Available reports whether the connection is usable.
func (c *GrpcSpeech) Available() bool {
	switch c.conn.GetState() {
	case connectivity.Shutdown, connectivity.TransientFailure:
		return false
	default:
		return true
	}
}

// Speak sends u to the service and returns when playback has finished.
func (c *GrpcSpeech) Speak(ctx context.Context, u Utterance) error {
	req, err := structpb.NewStruct(map[string]any{
		"text":   u.Text,
		"voice":  u.Voice,
		"rate":   u.Rate,
		"pitch":  u.Pitch,
		"volume": u.Volume,
	})
	if err != nil {
		return fmt.Errorf("encode utterance: %w", err)
	}
	if err := c.conn.Invoke(ctx, speakMethod, req, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("speak failed: %w", err)
	}
	return nil
}

// Voices returns the voice names the service offers.
func (c *GrpcSpeech) Voices(ctx context.Context) ([]string, error) {
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, voicesMethod, &emptypb.Empty{}, resp); err != nil {
		return nil, fmt.Errorf("list voices failed: %w", err)
	}
	var voices []string
	for _, v := range resp.GetFields()["voices"].GetListValue().GetValues() {
		if name := v.GetStringValue(); name != "" {
			voices = append(voices, name)
		}
	}
	return voices, nil
}

// Listen opens a server stream and forwards the first transcript.
func (c *GrpcSpeech) Listen(ctx context.Context) (<-chan TranscriptEvent, error) {
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "Listen",
		ServerStreams: true,
	}, listenMethod)
	if err != nil {
		return nil, fmt.Errorf("listen request failed: %w", err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, fmt.Errorf("listen request failed: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("listen request failed: %w", err)
	}

	out := make(chan TranscriptEvent, 1)
	go func() {
		defer close(out)
		for {
			msg := &structpb.Struct{}
			err := stream.RecvMsg(msg)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("listen stream error", "error", err)
				}
				return
			}
			text := msg.GetFields()["text"].GetStringValue()
			if text == "" {
				continue
			}
			select {
			case out <- TranscriptEvent{Text: text}:
			case <-ctx.Done():
			}
			return
		}
	}()
	return out, nil
}
