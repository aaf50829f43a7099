package protocol

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/recassity/mgba-bridge/internal/buttons"
	"github.com/recassity/mgba-bridge/internal/chatbuffer"
	"github.com/recassity/mgba-bridge/internal/config"
	"github.com/recassity/mgba-bridge/internal/detector"
	"github.com/recassity/mgba-bridge/internal/llm"
	"github.com/recassity/mgba-bridge/internal/notepad"
)

// State is one node of the Listening->Handshake->Configuring->Running
// machine (spec.md §4.4).
type State int

const (
	StateListening State = iota
	StateHandshake
	StateConfiguring
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	default:
		return "listening"
	}
}

// CycleOutcome is the tagged result of one cycle-loop iteration,
// replacing exceptions across the cycle boundary (DESIGN NOTES).
type CycleOutcome int

const (
	CycleOk CycleOutcome = iota
	CycleTimedOut
	CycleFileUnready
	CycleLLMError
	CycleSocketFault
)

const (
	defaultCycleTimeout    = 60 * time.Second
	malformedThreshold     = 8
	malformedWindow        = 60 * time.Second
	configRetryDelay       = time.Second
	maxConfigRetries       = 3
)

// Session owns exactly one net.Conn and drives it through the state
// machine and cycle loop. A new Session always replaces any prior one
// (server.go enforces this); Session itself has no knowledge of its
// predecessor.
type Session struct {
	conn     net.Conn
	cfg      config.Snapshot
	provider llm.Provider
	buf      *chatbuffer.Buffer
	sessID   uuid.UUID

	cycleTimeout time.Duration

	screenshotCh chan Message
	oobCh        chan Message

	writeMu sync.Mutex

	state   State
	stateMu sync.Mutex

	malformedMu     sync.Mutex
	malformedTimes  []time.Time

	lastClass      buttons.Class
	lastActionSent time.Time
	positionHist   []llm.PositionSample
	recentActions  []string

	prompt *llm.PromptTemplate
}

// NewSession constructs a session bound to conn. prompt may be nil if
// the prompt template failed to load; Decide then always fails with
// bad_response rather than calling the provider with an empty prompt.
func NewSession(conn net.Conn, cfg config.Snapshot, provider llm.Provider, buf *chatbuffer.Buffer, prompt *llm.PromptTemplate) *Session {
	return &Session{
		conn:           conn,
		cfg:            cfg,
		provider:       provider,
		buf:            buf,
		sessID:         uuid.New(),
		cycleTimeout:   defaultCycleTimeout,
		lastActionSent: time.Now(),
		screenshotCh:   make(chan Message, 1),
		oobCh:          make(chan Message, 16),
		state:          StateListening,
		prompt:         prompt,
	}
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// State returns the session's current machine state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Run drives the session to completion: handshake, config handoff,
// then the cycle loop, until ctx is cancelled or the socket faults.
// Cancellation is how the owning server enforces "a new accept closes
// and replaces the previous session."
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.conn.Close()

	go s.readLoop(ctx, cancel)

	s.setState(StateHandshake)
	s.appendSystem(fmt.Sprintf("session %s: waiting for emulator handshake", s.sessID))

	if !s.awaitHandshake(ctx) {
		return
	}

	s.setState(StateConfiguring)
	if !s.configureGame(ctx) {
		return
	}

	s.setState(StateRunning)
	s.appendSystem("configuration accepted; entering control loop")
	s.runCycleLoop(ctx)
}

func (s *Session) awaitHandshake(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case m := <-s.oobCh:
			if m.Kind == KindReady {
				return true
			}
			// Anything else arriving before the handshake is noise; log and keep waiting.
			log.Debug().Str("raw", m.Raw).Msg("protocol: ignoring frame before handshake")
		}
	}
}

// configureGame runs the Detector, pushes game_config, and waits for
// config_loaded||true, retrying on config_error per spec.md §7's
// ConfigRejected policy (retry once after 1s, drop to Listening after
// 3 retries).
func (s *Session) configureGame(ctx context.Context) bool {
	gameID, source := detector.Detect(s.cfg.ROMPath, s.cfg.ROMName, s.cfg.GameOverride)
	gameCfg := detector.ConfigFor(gameID)
	s.appendSystem(fmt.Sprintf("detected game %q via %s", gameCfg.Name, source))

	literal, err := detector.ToLuaLiteral(gameCfg)
	if err != nil {
		s.appendSystem(fmt.Sprintf("failed to render game config: %v", err))
		return false
	}

	for attempt := 0; attempt <= maxConfigRetries; attempt++ {
		if err := s.send("game_config||" + literal); err != nil {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case m := <-s.oobCh:
			switch m.Kind {
			case KindConfigLoaded:
				return true
			case KindConfigError:
				s.appendSystem(fmt.Sprintf("config rejected: %s (attempt %d/%d)", m.Detail, attempt+1, maxConfigRetries+1))
				if attempt == maxConfigRetries {
					return false
				}
				time.Sleep(configRetryDelay)
			default:
				log.Debug().Str("raw", m.Raw).Msg("protocol: ignoring frame while configuring")
			}
		case <-time.After(s.cycleTimeout):
			s.appendSystem("timed out waiting for config_loaded")
			return false
		}
	}
	return false
}

// readLoop is the socket reader: it does nothing but turn bytes into
// Messages and route them, matching spec.md §5's "no user code runs on
// the socket reader path longer than buffer append + rendezvous
// signal." A genuine parse failure counts toward the malformed-frame
// threshold; tolerated-unknown frames do not.
func (s *Session) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	reasm := &Reassembler{}
	chunk := make([]byte, 4096)
	for {
		n, err := s.conn.Read(chunk)
		if err != nil {
			return
		}
		for _, line := range reasm.Feed(chunk[:n]) {
			msg, malformed := ParseLine(line)
			if malformed {
				if s.recordMalformed() {
					s.appendSystem("malformed frame threshold exceeded; closing session")
					return
				}
				continue
			}
			s.route(msg)
		}
	}
}

func (s *Session) route(m Message) {
	if m.ScreenshotBearing() {
		select {
		case s.screenshotCh <- m:
		default:
			log.Warn().Str("raw", m.Raw).Msg("protocol: dropping screenshot frame, no cycle awaiting it")
		}
		return
	}
	select {
	case s.oobCh <- m:
	default:
		log.Warn().Str("raw", m.Raw).Msg("protocol: out-of-band channel full, dropping frame")
	}
}

// recordMalformed appends now to the sliding window and reports
// whether the threshold (8 in 60s) has been exceeded.
func (s *Session) recordMalformed() bool {
	s.malformedMu.Lock()
	defer s.malformedMu.Unlock()
	now := time.Now()
	s.malformedTimes = append(s.malformedTimes, now)
	cutoff := now.Add(-malformedWindow)
	kept := s.malformedTimes[:0]
	for _, t := range s.malformedTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.malformedTimes = kept
	return len(s.malformedTimes) >= malformedThreshold
}

func (s *Session) send(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write([]byte(line + "\n"))
	return err
}

func (s *Session) appendSystem(content string) {
	s.buf.Append(chatbuffer.Message{
		SessionID: s.sessID,
		Kind:      chatbuffer.KindSystem,
		Content:   content,
	})
}

// runCycleLoop repeats the 6-step cycle until the session ends.
func (s *Session) runCycleLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if s.runCycle(ctx) == CycleSocketFault {
			return
		}
	}
}

func (s *Session) runCycle(ctx context.Context) CycleOutcome {
	if !s.waitForGate(ctx) {
		return CycleSocketFault
	}

	if err := s.send("request_screenshot"); err != nil {
		return CycleSocketFault
	}

	timeout := time.After(s.cycleTimeout)
	var msg Message
	select {
	case msg = <-s.screenshotCh:
	case oob := <-s.oobCh:
		// config_error or a late after_screenshot_data while awaiting a
		// screenshot: dispatch out of band, then keep waiting for the
		// screenshot within whatever's left of the budget.
		s.dispatchOOB(oob)
		select {
		case msg = <-s.screenshotCh:
		case <-timeout:
			s.appendSystem("cycle timeout")
			return CycleTimedOut
		case <-ctx.Done():
			return CycleSocketFault
		}
	case <-timeout:
		s.appendSystem("cycle timeout")
		return CycleTimedOut
	case <-ctx.Done():
		return CycleSocketFault
	}

	s.observe(msg)

	dec, outcome := s.decide(ctx, msg)
	if outcome != CycleOk {
		return outcome
	}

	s.act(dec)
	return CycleOk
}

// dispatchOOB handles a control-plane message arriving mid-cycle, per
// SPEC_FULL.md §9's resolution of the after_screenshot_data ordering
// question: attach it as an observation only, never feed it to the LLM.
func (s *Session) dispatchOOB(m Message) {
	switch m.Kind {
	case KindConfigError:
		s.appendSystem("config_error received mid-cycle: " + m.Detail)
	case KindAfterScreenshotData:
		s.buf.Append(chatbuffer.Message{
			SessionID: s.sessID, Kind: chatbuffer.KindScreenshot,
			GameState: chatbuffer.GameState{Direction: m.Direction, X: m.X, Y: m.Y, MapID: m.MapID},
		})
	default:
		log.Debug().Str("raw", m.Raw).Msg("protocol: dispatched out-of-band frame")
	}
}

// waitForGate implements step 1: wait until decision_cooldown_s (times
// the previous action's class factor) has elapsed since the last
// button frame was sent, not since this cycle started — the LLM call
// and socket round-trip already burn part of that budget, and §4.4
// defines the gate against time since the last send, not a fixed delay
// added on top of every cycle.
func (s *Session) waitForGate(ctx context.Context) bool {
	factor := buttons.ClassFactor(s.lastClass,
		s.cfg.Timing.MovementMultiplier, s.cfg.Timing.InteractionMultiplier, s.cfg.Timing.MenuMultiplier)
	cooldown := time.Duration(s.cfg.DecisionCooldownS * factor * float64(time.Second))
	floor := time.Duration(s.cfg.DecisionCooldownS * float64(time.Second))
	if cooldown < floor {
		cooldown = floor
	}

	wait := cooldown - time.Since(s.lastActionSent)
	if wait <= 0 {
		return true
	}
	select {
	case <-time.After(wait):
		return true
	case <-ctx.Done():
		return false
	}
}

// observe is step 4: append a screenshot/screenshot_comparison entry
// and update the position history used by movement analysis.
func (s *Session) observe(m Message) {
	state := chatbuffer.GameState{Direction: m.Direction, X: m.X, Y: m.Y, MapID: m.MapID}
	if m.Kind == KindEnhancedScreenshotWithState && m.Previous != "" {
		s.buf.Append(chatbuffer.Message{
			SessionID: s.sessID, Kind: chatbuffer.KindScreenshotComparison,
			PreviousURI: m.Previous, GameState: state,
		})
	} else {
		s.buf.Append(chatbuffer.Message{
			SessionID: s.sessID, Kind: chatbuffer.KindScreenshot,
			GameState: state,
		})
	}

	s.positionHist = append(s.positionHist, llm.PositionSample{X: m.X, Y: m.Y, MapID: m.MapID})
	if len(s.positionHist) > 8 {
		s.positionHist = s.positionHist[len(s.positionHist)-8:]
	}
}

// decide is step 5: wait for screenshot readiness, assemble the
// prompt, and call the provider.
func (s *Session) decide(ctx context.Context, m Message) (llm.Decision, CycleOutcome) {
	if err := llm.WaitForScreenshot(m.Current, s.lastClass,
		s.cfg.Timing.BaseStabilizationMS, s.cfg.Timing.MaxWaitMS,
		s.cfg.Timing.MovementMultiplier, s.cfg.Timing.InteractionMultiplier, s.cfg.Timing.MenuMultiplier); err != nil {
		s.appendErrorResponse(llm.ErrFileMissing, err.Error())
		return llm.Decision{}, CycleFileUnready
	}

	images, err := s.loadImages(m)
	if err != nil {
		s.appendErrorResponse(llm.ErrFileMissing, err.Error())
		return llm.Decision{}, CycleFileUnready
	}

	if s.prompt == nil {
		s.appendErrorResponse(llm.ErrBadResponse, "prompt template not loaded")
		return llm.Decision{}, CycleLLMError
	}

	text := s.prompt.Render(llm.RenderContext{
		RecentActions:   s.recentActions,
		NotepadContent:  s.readNotepad(),
		CurrentMap:      m.MapID,
		PlayerX:         m.X,
		PlayerY:         m.Y,
		PlayerDirection: m.Direction,
		History:         s.positionHist,
	})

	req := llm.AnalyzeRequest{
		Prompt:    text,
		Images:    images,
		GameState: llm.GameState{Direction: m.Direction, X: m.X, Y: m.Y, MapID: m.MapID},
		ModelName: s.cfg.ModelName,
		APIKey:    s.cfg.APIKey,
	}

	dec, err := s.provider.Analyze(ctx, req)
	if err != nil {
		s.appendErrorResponse(llm.ErrNetwork, err.Error())
		return llm.Decision{}, CycleLLMError
	}
	if dec.Err != nil {
		s.appendErrorResponse(dec.Err.Kind, dec.Err.Message)
		return llm.Decision{}, CycleLLMError
	}
	return dec, CycleOk
}

func (s *Session) loadImages(m Message) ([]llm.ImageAttachment, error) {
	var paths []string
	if m.Previous != "" {
		if _, err := os.Stat(m.Previous); err == nil {
			paths = append(paths, m.Previous)
		}
	}
	paths = append(paths, m.Current)

	images := make([]llm.ImageAttachment, 0, len(paths))
	for _, p := range paths {
		uri, err := loadPNGDataURI(p)
		if err != nil {
			return nil, err
		}
		images = append(images, llm.ImageAttachment{DataURI: uri})
	}
	return images, nil
}

// loadPNGDataURI reads path, sanity-checks it decodes as a PNG (no
// resizing — Non-goal), and returns it base64-encoded. The raw bytes,
// not the re-encoded decoded image, are what gets attached: decoding
// is a validity check only.
func loadPNGDataURI(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("protocol: read screenshot %s: %w", path, err)
	}
	if _, err := png.Decode(bytes.NewReader(raw)); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("protocol: screenshot did not decode as PNG, attaching raw bytes anyway")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw), nil
}

// readNotepad goes through notepad.Read so the long-term-memory
// notepad file is reachable through the same collaborator the LLM Adapter's
// append side uses, rather than a second hand-rolled read path.
func (s *Session) readNotepad() string {
	if s.cfg.NotepadPath == "" {
		return ""
	}
	content, _, err := notepad.Read(s.cfg.NotepadPath)
	if err != nil {
		log.Warn().Err(err).Str("path", s.cfg.NotepadPath).Msg("protocol: failed to read notepad")
		return ""
	}
	return content
}

// act is step 6: emit the ai_response entry, send the button frame,
// and classify the action for the next cycle's gate/readiness wait.
func (s *Session) act(dec llm.Decision) {
	names := dec.Actions.Names()
	s.buf.Append(chatbuffer.Message{
		SessionID: s.sessID, Kind: chatbuffer.KindAIResponse,
		Text: dec.Text, Actions: names,
	})

	if dec.NotepadEntry != "" && s.cfg.NotepadPath != "" {
		if err := notepad.Append(s.cfg.NotepadPath, dec.NotepadEntry); err != nil {
			log.Warn().Err(err).Str("path", s.cfg.NotepadPath).Msg("protocol: failed to append notepad entry")
		}
	}

	if len(dec.Actions) == 0 {
		return
	}

	frame := buttons.EncodeFrame(dec.Actions)
	if frame == "" {
		return
	}
	_ = s.send(frame)
	s.lastActionSent = time.Now()

	s.lastClass = buttons.Classify(dec.Actions)
	s.recentActions = append(s.recentActions, names...)
	if len(s.recentActions) > 8 {
		s.recentActions = s.recentActions[len(s.recentActions)-8:]
	}
}

func (s *Session) appendErrorResponse(kind llm.ErrorKind, detail string) {
	s.buf.Append(chatbuffer.Message{
		SessionID: s.sessID, Kind: chatbuffer.KindAIResponse,
		Text:         fmt.Sprintf("⚠️ An error occurred: %s", kind),
		Actions:      []string{},
		ErrorDetails: detail,
	})
}
