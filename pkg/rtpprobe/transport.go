package rtpprobe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/pion/rtp"
)

// Ограничения на размер пакета (RFC 3550)
const (
	MinRTPPacketSize = 12
	MaxRTPPacketSize = 1500

	rtpVersion = 2
)

// readPollInterval как часто Receive проверяет отмену контекста
const readPollInterval = 100 * time.Millisecond

// ErrClosed операция на закрытом сокете
var ErrClosed = errors.New("rtpprobe: socket closed")

// ListenConfig параметры слушателя
type ListenConfig struct {
	// Addr локальный адрес host:port
	Addr string
	// ReusePort разрешает слушать порт вместе с другим процессом (Linux)
	ReusePort bool
	// BufferSize размер буфера чтения; 0 означает MaxRTPPacketSize
	BufferSize int
}

// Listener принимает RTP пакеты по UDP
type Listener struct {
	conn       *net.UDPConn
	bufferSize int

	mu     sync.RWMutex
	closed bool
}

// Listen открывает UDP сокет на cfg.Addr
func Listen(cfg ListenConfig) (*Listener, error) {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = MaxRTPPacketSize
	}
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return controlSocket(c, cfg.ReusePort)
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания UDP сокета %s: %w", cfg.Addr, err)
	}
	return &Listener{conn: pc.(*net.UDPConn), bufferSize: cfg.BufferSize}, nil
}

// LocalAddr адрес, на котором слушает сокет
func (l *Listener) LocalAddr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Receive читает следующий валидный RTP пакет. Блокируется до пакета,
// ошибки сокета или отмены ctx.
func (l *Listener) Receive(ctx context.Context) (*rtp.Packet, *net.UDPAddr, error) {
	buf := make([]byte, l.bufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		l.mu.RLock()
		closed := l.closed
		l.mu.RUnlock()
		if closed {
			return nil, nil, ErrClosed
		}

		_ = l.conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, nil, ErrClosed
			}
			return nil, nil, fmt.Errorf("UDP read: %w", err)
		}

		packet, err := decode(buf[:n])
		if err != nil {
			return nil, addr, err
		}
		return packet, addr, nil
	}
}

// Close закрывает сокет; повторный вызов ничего не делает
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.conn.Close()
}

// InvalidPacketError датаграмма не является RTP пакетом
type InvalidPacketError struct {
	Size   int
	Reason string
}

func (e *InvalidPacketError) Error() string {
	return fmt.Sprintf("невалидный RTP пакет (%d байт): %s", e.Size, e.Reason)
}

func decode(data []byte) (*rtp.Packet, error) {
	if err := validatePacketSize(len(data)); err != nil {
		return nil, err
	}
	packet := &rtp.Packet{}
	if err := packet.Unmarshal(data); err != nil {
		return nil, &InvalidPacketError{Size: len(data), Reason: err.Error()}
	}
	if err := validateRTPHeader(&packet.Header, len(data)); err != nil {
		return nil, err
	}
	return packet, nil
}

func validatePacketSize(size int) error {
	if size < MinRTPPacketSize {
		return &InvalidPacketError{Size: size, Reason: fmt.Sprintf("меньше %d байт", MinRTPPacketSize)}
	}
	if size > MaxRTPPacketSize {
		return &InvalidPacketError{Size: size, Reason: fmt.Sprintf("больше %d байт", MaxRTPPacketSize)}
	}
	return nil
}

func validateRTPHeader(h *rtp.Header, size int) error {
	if h.Version != rtpVersion {
		return &InvalidPacketError{Size: size, Reason: fmt.Sprintf("версия %d", h.Version)}
	}
	if h.PayloadType > 127 {
		return &InvalidPacketError{Size: size, Reason: fmt.Sprintf("payload type %d", h.PayloadType)}
	}
	return nil
}

// SendConfig параметры отправителя
type SendConfig struct {
	// Remote адрес получателя host:port
	Remote string
	// DSCP маркировка QoS (46 = EF для голоса); 0 не устанавливается
	DSCP int
}

// Sender отправляет RTP пакеты на один адрес
type Sender struct {
	conn *net.UDPConn
}

// Dial создает отправителя
func Dial(cfg SendConfig) (*Sender, error) {
	remote, err := net.ResolveUDPAddr("udp", cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения адреса %s: %w", cfg.Remote, err)
	}
	conn, err := net.DialUDP("udp", nil, remote)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания UDP соединения: %w", err)
	}
	if cfg.DSCP != 0 {
		raw, err := conn.SyscallConn()
		if err == nil {
			err = setDSCP(raw, cfg.DSCP)
		}
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("ошибка настройки DSCP: %w", err)
		}
	}
	return &Sender{conn: conn}, nil
}

// Send сериализует и отправляет пакет
func (s *Sender) Send(packet *rtp.Packet) error {
	if err := validateRTPHeader(&packet.Header, packet.MarshalSize()); err != nil {
		return err
	}
	data, err := packet.Marshal()
	if err != nil {
		return fmt.Errorf("ошибка маршалинга RTP пакета: %w", err)
	}
	if err := validatePacketSize(len(data)); err != nil {
		return err
	}
	if _, err := s.conn.Write(data); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("UDP write: %w", err)
	}
	return nil
}

// Close закрывает сокет
func (s *Sender) Close() error {
	return s.conn.Close()
}
