package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"
	"travelBooker/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type smtpSession struct {
	from string
	to   []string
	data string
}

func newSMTPServer(t *testing.T, handle func(conn net.Conn)) (string, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	return host, p
}

func serveSMTP(got chan<- smtpSession) func(conn net.Conn) {
	return func(conn net.Conn) {
		tc := textproto.NewConn(conn)

		var s smtpSession

		_ = tc.PrintfLine("220 mail.test ESMTP")
		for {
			line, err := tc.ReadLine()
			if err != nil {
				return
			}

			verb, arg, _ := strings.Cut(line, " ")
			switch strings.ToUpper(verb) {
			case "EHLO", "HELO":
				_ = tc.PrintfLine("250 mail.test")
			case "MAIL":
				s.from = strings.Trim(strings.TrimPrefix(arg, "FROM:"), "<>")
				_ = tc.PrintfLine("250 OK")
			case "RCPT":
				to := strings.Trim(strings.TrimPrefix(arg, "TO:"), "<>")
				if strings.HasPrefix(to, "rejected@") {
					_ = tc.PrintfLine("550 no such user")
					continue
				}
				s.to = append(s.to, to)
				_ = tc.PrintfLine("250 OK")
			case "DATA":
				_ = tc.PrintfLine("354 go ahead")
				lines, err := tc.ReadDotLines()
				if err != nil {
					return
				}
				s.data = strings.Join(lines, "\n")
				_ = tc.PrintfLine("250 queued")
			case "RSET", "NOOP":
				_ = tc.PrintfLine("250 OK")
			case "QUIT":
				_ = tc.PrintfLine("221 bye")
				got <- s
				return
			default:
				_ = tc.PrintfLine("502 not implemented")
			}
		}
	}
}

func TestEmailChannel(t *testing.T) {
	t.Parallel()

	got := make(chan smtpSession, 1)
	host, port := newSMTPServer(t, serveSMTP(got))

	c := NewEmailChannel(config.SMTP{Host: host, Port: port, From: "bookings@travel.example", Timeout: 2 * time.Second})

	err := c.Send(context.Background(), Notification{
		Subject: "Booking TRV-1 confirmed",
		Body:    "line one\nline two",
		Email:   "ada@example.com",
	})
	require.NoError(t, err)

	select {
	case s := <-got:
		assert.Equal(t, "bookings@travel.example", s.from)
		assert.Equal(t, []string{"ada@example.com"}, s.to)
		assert.Contains(t, s.data, "Subject: Booking TRV-1 confirmed")
		assert.Contains(t, s.data, "line one\nline two")
	case <-time.After(2 * time.Second):
		t.Fatal("smtp session not finished")
	}

	assert.ErrorIs(t, c.Send(context.Background(), Notification{}), ErrNoRecipient)
	assert.Error(t, c.Send(context.Background(), Notification{Email: "rejected@example.com"}))
}

func TestEmailChannelStalledServer(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	host, port := newSMTPServer(t, func(net.Conn) { <-release })

	cases := []struct {
		name    string
		timeout time.Duration
		ctx     func() (context.Context, context.CancelFunc)
	}{
		{
			name:    "Configured timeout",
			timeout: 100 * time.Millisecond,
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
		},
		{
			name: "Caller deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 100*time.Millisecond)
			},
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := NewEmailChannel(config.SMTP{Host: host, Port: port, From: "bookings@travel.example", Timeout: tc.timeout})

			ctx, cancel := tc.ctx()
			defer cancel()

			start := time.Now()
			err := c.Send(ctx, Notification{Subject: "x", Email: "ada@example.com"})

			assert.Error(t, err)
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}

func TestSMSChannel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer sms-key", r.Header.Get("Authorization"))

		var req smsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.To == "+10000000000" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}

		assert.Equal(t, "TRAVEL", req.From)
		assert.Equal(t, "Booking TRV-1 confirmed", req.Text)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	c := NewSMSChannel(config.SMS{BaseURL: srv.URL + "/", APIKey: "sms-key", Sender: "TRAVEL", Timeout: time.Second})

	assert.NoError(t, c.Send(context.Background(), Notification{Subject: "Booking TRV-1 confirmed", Phone: "+441234567890"}))
	assert.Error(t, c.Send(context.Background(), Notification{Subject: "x", Phone: "+10000000000"}))
	assert.ErrorIs(t, c.Send(context.Background(), Notification{}), ErrNoRecipient)
}

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, b.err
}

func TestTelegramChannel(t *testing.T) {
	t.Parallel()

	bot := &fakeBot{}
	c := &TelegramChannel{bot: bot, chatID: 42}

	require.NoError(t, c.Send(context.Background(), Notification{Kind: "BookingConfirmed", Subject: "Booking TRV-1 confirmed", Body: "details"}))
	require.Len(t, bot.sent, 1)

	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "[BookingConfirmed] Booking TRV-1 confirmed\ndetails", msg.Text)

	bot.err = errors.New("chat not found")
	assert.Error(t, c.Send(context.Background(), Notification{}))
}
