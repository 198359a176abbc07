package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	twoFactorRecordVersion1 = 1
)

var (
	ErrTwoFactorChallengeNotFound = errors.New("two-factor challenge not found")
	ErrTwoFactorChallengeBackend  = errors.New("two-factor challenge backend unavailable")
)

// TwoFactorChallenge is the pending code for one account and method.
type TwoFactorChallenge struct {
	Code      string
	CreatedAt int64
	Attempts  uint16
}

// TwoFactorChallengeStore keeps challenges under "2fa_{method}_{accountID}"
// with a server-side TTL.
type TwoFactorChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTwoFactorChallengeStore(redisClient redis.UniversalClient, prefix string) *TwoFactorChallengeStore {
	return &TwoFactorChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *TwoFactorChallengeStore) key(accountID, method string) string {
	return s.prefix + "2fa_" + method + "_" + accountID
}

// Save replaces any pending challenge for the account and method.
func (s *TwoFactorChallengeStore) Save(
	ctx context.Context,
	accountID, method string,
	record *TwoFactorChallenge,
	ttl time.Duration,
) error {
	encoded, err := encodeTwoFactorChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(accountID, method), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorChallengeBackend, err)
	}
	return nil
}

func (s *TwoFactorChallengeStore) Get(ctx context.Context, accountID, method string) (*TwoFactorChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(accountID, method)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTwoFactorChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTwoFactorChallengeBackend, err)
	}

	record, err := decodeTwoFactorChallenge(data)
	if err != nil {
		// An unreadable record cannot be verified against; treat it as gone.
		_, _ = s.redis.Del(ctx, s.key(accountID, method)).Result()
		return nil, ErrTwoFactorChallengeNotFound
	}
	return record, nil
}

func (s *TwoFactorChallengeStore) Delete(ctx context.Context, accountID, method string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(accountID, method)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTwoFactorChallengeBackend, err)
	}
	return n > 0, nil
}

func encodeTwoFactorChallenge(record *TwoFactorChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(twoFactorRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if len(record.Code) > 255 {
		return nil, errors.New("two-factor code length exceeded")
	}
	buf.WriteByte(byte(len(record.Code)))
	buf.WriteString(record.Code)

	return buf.Bytes(), nil
}

func decodeTwoFactorChallenge(data []byte) (*TwoFactorChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != twoFactorRecordVersion1 {
		return nil, errors.New("invalid two-factor challenge version")
	}

	record := &TwoFactorChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}

	codeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(reader, code); err != nil {
		return nil, err
	}
	record.Code = string(code)

	return record, nil
}
