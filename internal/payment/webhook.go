package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Webhook event types delivered by the processor.
const (
	EventSessionCompleted = "checkout.session.completed"
	EventSessionExpired   = "checkout.session.expired"
)

// ErrSignature is returned when a webhook signature check fails. Callers must
// reject the notification without any state change.
var ErrSignature = errors.New("webhook signature verification failed")

// DefaultTolerance is the maximum accepted age of a signed webhook payload.
var DefaultTolerance = 5 * time.Minute

// Event is a parsed webhook notification.
type Event struct {
	ID      string
	Type    string
	Session Session
}

// ParseEvent verifies the signature header against the raw request body and
// decodes the event. Delivery is at least once; callers are responsible for
// idempotent handling.
//
// The signature header has the form "t=<unix>,v1=<hex>" where the hex value is
// HMAC-SHA256 over "<unix>.<body>" keyed with the shared webhook secret.
func ParseEvent(body []byte, sigHeader string, secret []byte, now time.Time) (*Event, error) {
	if err := verifySignature(body, sigHeader, secret, now); err != nil {
		return nil, err
	}
	return decodeEvent(body)
}

func verifySignature(body []byte, sigHeader string, secret []byte, now time.Time) error {
	var (
		ts  int64
		sig []byte
	)
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrSignature
			}
			ts = parsed
		case "v1":
			decoded, err := hex.DecodeString(v)
			if err != nil {
				return ErrSignature
			}
			sig = decoded
		}
	}
	if ts == 0 || len(sig) == 0 {
		return ErrSignature
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > DefaultTolerance || age < -DefaultTolerance {
		return ErrSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, sig) != 1 {
		return ErrSignature
	}
	return nil
}

func decodeEvent(body []byte) (*Event, error) {
	var ev Event
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			ev.ID = v
			return err
		case "type":
			v, err := d.Str()
			ev.Type = v
			return err
		case "data":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "object" {
					return d.Skip()
				}
				return decodeSessionObject(d, &ev.Session)
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode webhook event")
	}
	if ev.Type == "" {
		return nil, errors.New("webhook event missing type")
	}
	return &ev, nil
}

func decodeSessionObject(d *jx.Decoder, s *Session) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			s.ID = v
			return err
		case "url":
			v, err := d.Str()
			s.URL = v
			return err
		case "payment_status":
			v, err := d.Str()
			s.PaymentStatus = v
			return err
		case "metadata":
			raw := make(map[string]string)
			if err := d.Obj(func(d *jx.Decoder, key string) error {
				v, err := d.Str()
				raw[key] = v
				return err
			}); err != nil {
				return err
			}
			meta, err := decodeMetadata(raw)
			if err != nil {
				return err
			}
			s.Metadata = meta
			return nil
		default:
			return d.Skip()
		}
	})
}

// SignPayload computes the signature header for a payload, as the processor
// would. Exported for tests and local tooling.
func SignPayload(body []byte, secret []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}
