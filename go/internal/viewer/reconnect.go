package viewer

import "time"

// ReconnectConfig bounds the reconnect backoff
type ReconnectConfig struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Base:        time.Second,
		Cap:         10 * time.Second,
		MaxAttempts: 5,
	}
}

// ReconnectManager counts reconnect attempts and computes their delay
type ReconnectManager struct {
	config   ReconnectConfig
	attempts int
}

func NewReconnectManager(config ReconnectConfig) *ReconnectManager {
	return &ReconnectManager{config: config}
}

// Backoff returns min(base*2^attempt, cap)
func (m *ReconnectManager) Backoff(attempt int) time.Duration {
	delay := m.config.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.Cap {
			return m.config.Cap
		}
	}
	return min(delay, m.config.Cap)
}

// Next counts an attempt and returns its delay. Once MaxAttempts have been
// used it returns ErrReconnectExhausted until Reset.
func (m *ReconnectManager) Next() (time.Duration, error) {
	if m.attempts >= m.config.MaxAttempts {
		return 0, ErrReconnectExhausted
	}
	m.attempts++
	return m.Backoff(m.attempts), nil
}

// Reset is called after a successful connect
func (m *ReconnectManager) Reset() {
	m.attempts = 0
}

func (m *ReconnectManager) Attempts() int {
	return m.attempts
}
