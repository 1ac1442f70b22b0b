// ABOUTME: Player application orchestration
// ABOUTME: Runs the session machine and keeps the control connection alive
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Resonate-Protocol/slimplayer/internal/control"
	"github.com/Resonate-Protocol/slimplayer/internal/retry"
	"github.com/Resonate-Protocol/slimplayer/internal/session"
	"github.com/Resonate-Protocol/slimplayer/pkg/slimproto"
)

// A connection that ends sooner than this is treated like a failed attempt
// before reconnecting.
const defaultMinSession = 5 * time.Second

// Config holds player configuration
type Config struct {
	// Address is host:port of the control server
	Address string
	Helo    slimproto.Helo
	Name    string

	HandshakeTimeout time.Duration
	SilenceTimeout   time.Duration
	WriteTimeout     time.Duration
	MinSession       time.Duration
	Debug            bool

	Backoff *retry.Backoff
	Session session.Config

	// OnConnection observes control connection changes
	OnConnection func(connected bool, address string)
	// OnError receives failures the user should see
	OnError      func(err error)
}

// Player keeps one control connection open and feeds it to the session
// machine, reconnecting with backoff for as long as it runs
type Player struct {
	config  Config
	machine *session.Machine
	backoff *retry.Backoff

	mu        sync.Mutex
	address   string
	name      string
	immediate bool
	dropConn  context.CancelFunc
}

// New creates a player. The session callbacks for redirects, renames and
// errors are chained behind the player's own handling.
func New(config Config) *Player {
	if config.MinSession <= 0 {
		config.MinSession = defaultMinSession
	}

	p := &Player{
		config:  config,
		address: config.Address,
		name:    config.Name,
	}

	backoff := retry.DefaultBackoff()
	if config.Backoff != nil {
		copied := *config.Backoff
		backoff = &copied
	}
	backoff.OnFailure = func(attempt int, err error) {
		p.reportError(fmt.Errorf("connect to %s failed %d times: %w", p.Address(), attempt, err))
	}
	p.backoff = backoff

	sc := config.Session
	sc.Name = config.Name
	onRedirect, onRename, onError := sc.OnRedirect, sc.OnRename, sc.OnError
	sc.OnRedirect = func(ip net.IP) {
		p.redirect(ip)
		if onRedirect != nil {
			onRedirect(ip)
		}
	}
	sc.OnRename = func(name string) {
		p.mu.Lock()
		p.name = name
		p.mu.Unlock()
		if onRename != nil {
			onRename(name)
		}
	}
	sc.OnError = func(err error) {
		if onError != nil {
			onError(err)
		}
		p.reportError(err)
	}
	p.machine = session.New(sc)

	return p
}

// Machine returns the session machine driven by the player
func (p *Player) Machine() *session.Machine {
	return p.machine
}

// Address returns the control server currently targeted
func (p *Player) Address() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.address
}

// Reconnect drops the current control connection. The run loop dials
// again straight away.
func (p *Player) Reconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.immediate = true
	if p.dropConn != nil {
		p.dropConn()
	}
}

// Run connects and serves the control channel until ctx is cancelled.
// It only returns an error if the session machine stops on its own.
func (p *Player) Run(ctx context.Context) error {
	machineErr := make(chan error, 1)
	go func() {
		machineErr <- p.machine.Run(ctx)
	}()

	quick := 0
	for ctx.Err() == nil {
		conn, err := p.dial(ctx)
		if err != nil {
			break
		}

		started := time.Now()
		err = p.serve(ctx, conn)
		if ctx.Err() != nil {
			break
		}

		p.mu.Lock()
		immediate := p.immediate
		p.immediate = false
		p.mu.Unlock()

		switch {
		case immediate:
			quick = 0
			log.Printf("Reconnecting to %s", p.Address())
			continue
		case control.IsProtocolError(err) || time.Since(started) < p.config.MinSession:
			quick++
		default:
			quick = 0
		}

		log.Printf("Control connection lost: %v", err)
		if quick > 0 {
			if werr := p.backoff.Wait(ctx, quick); werr != nil {
				break
			}
		}
	}

	err := <-machineErr
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	log.Printf("Player stopped")
	return err
}

// dial retries until a handshake succeeds or ctx ends
func (p *Player) dial(ctx context.Context) (*control.Conn, error) {
	var conn *control.Conn
	err := p.backoff.Do(ctx, func(attempt int) error {
		p.machine.Connecting()
		c, err := control.Dial(ctx, p.controlConfig())
		if err != nil {
			log.Printf("Connect attempt %d failed: %v", attempt, err)
			p.machine.Disconnected()
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// serve runs one connection until it drops. BYE! is sent when ctx ends.
func (p *Player) serve(ctx context.Context, conn *control.Conn) error {
	address := p.Address()
	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.mu.Lock()
	p.dropConn = cancel
	p.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		if err := conn.Send(slimproto.TagBye, []byte{0}); err != nil {
			log.Printf("Failed to send BYE!: %v", err)
		}
		cancel()
	})
	defer stop()

	if p.config.OnConnection != nil {
		p.config.OnConnection(true, address)
	}
	p.machine.HandshakeDone(conn, conn.RemoteIP())

	err := conn.Run(connCtx, p.machine.HandleFrame)

	p.mu.Lock()
	p.dropConn = nil
	p.mu.Unlock()

	p.machine.Disconnected()
	if p.config.OnConnection != nil {
		p.config.OnConnection(false, address)
	}
	return err
}

func (p *Player) controlConfig() control.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return control.Config{
		Address:          p.address,
		Helo:             p.config.Helo,
		Name:             p.name,
		HandshakeTimeout: p.config.HandshakeTimeout,
		SilenceTimeout:   p.config.SilenceTimeout,
		WriteTimeout:     p.config.WriteTimeout,
		Debug:            p.config.Debug,
	}
}

// redirect points the player at another server on the same port and
// drops the current connection
func (p *Player) redirect(ip net.IP) {
	if ip == nil || ip.IsUnspecified() {
		log.Printf("Ignoring redirect without an address")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	port := strconv.Itoa(slimproto.DefaultPort)
	if _, existing, err := net.SplitHostPort(p.address); err == nil {
		port = existing
	}
	p.address = net.JoinHostPort(ip.String(), port)
	p.immediate = true
	if p.dropConn != nil {
		p.dropConn()
	}
}

func (p *Player) reportError(err error) {
	log.Printf("Player error: %v", err)
	if p.config.OnError != nil {
		p.config.OnError(err)
	}
}
