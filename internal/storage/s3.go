package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

// GCMMagic prefixes objects encrypted by Encrypt.
const GCMMagic = "GCM3NCR0"

const (
	saltSize   = 16
	nonceSize  = 12
	tagSize    = 16
	kdfRounds  = 100000
	keyLen     = 32
	headerSize = len(GCMMagic) + saltSize + nonceSize
)

// S3Client downloads input PDFs from and uploads extraction results to S3.
type S3Client struct {
	client *s3.Client
	bucket string // default bucket for bare keys
}

// NewS3Client creates a new S3 client from the default AWS config chain.
func NewS3Client(ctx context.Context, bucket string) (*S3Client, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Client{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// ParseURL splits s3://bucket/key. A bare key uses defaultBucket.
func ParseURL(ref, defaultBucket string) (bucket, key string, err error) {
	if !strings.HasPrefix(ref, "s3://") {
		if defaultBucket == "" || ref == "" {
			return "", "", fmt.Errorf("invalid s3 url: %s", ref)
		}
		return defaultBucket, strings.TrimPrefix(ref, "/"), nil
	}
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return path[:slash], path[slash+1:], nil
}

// Download fetches ref (s3://bucket/key or a key in the default bucket) and
// decrypts it when it carries the GCM header and a password is given.
func (s *S3Client) Download(ctx context.Context, ref, password string) ([]byte, error) {
	bucket, key, err := ParseURL(ref, s.bucket)
	if err != nil {
		return nil, err
	}
	buf := manager.NewWriteAtBuffer(nil)
	n, err := manager.NewDownloader(s.client).Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	data := buf.Bytes()[:n]

	encrypted := IsEncrypted(data)
	if encrypted {
		if password == "" {
			return nil, fmt.Errorf("object %s is encrypted and no password is configured", key)
		}
		if data, err = Decrypt(data, password); err != nil {
			return nil, fmt.Errorf("failed to decrypt data: %w", err)
		}
	}
	log.Info().
		Str("bucket", bucket).
		Str("key", key).
		Bool("encrypted", encrypted).
		Int("size", len(data)).
		Msg("downloaded file from S3")
	return data, nil
}

// Upload stores body at ref, encrypting it first when password is set.
func (s *S3Client) Upload(ctx context.Context, ref string, body io.Reader, contentType, password string) error {
	bucket, key, err := ParseURL(ref, s.bucket)
	if err != nil {
		return err
	}
	meta := map[string]string{}
	if password != "" {
		plain, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("read upload body: %w", err)
		}
		enc, err := Encrypt(plain, password)
		if err != nil {
			return fmt.Errorf("failed to encrypt data: %w", err)
		}
		body = bytes.NewReader(enc)
		meta["encrypted"] = "true"
		meta["encryption-format"] = GCMMagic
	}

	out, err := manager.NewUploader(s.client).Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata:    meta,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Str("location", out.Location).Msg("uploaded file to S3")
	return nil
}

// Ping checks that the default bucket is reachable.
func (s *S3Client) Ping(ctx context.Context) error {
	if s.bucket == "" {
		return fmt.Errorf("no bucket configured")
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

// IsEncrypted reports whether data starts with the GCM header.
func IsEncrypted(data []byte) bool {
	return len(data) >= headerSize+tagSize && string(data[:len(GCMMagic)]) == GCMMagic
}

// Encrypt seals data with AES-256-GCM under a PBKDF2 key.
// Format: magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
func Encrypt(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, headerSize+len(data)+tagSize)
	out = append(out, GCMMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Decrypt opens data produced by Encrypt.
func Decrypt(data []byte, password string) ([]byte, error) {
	if !IsEncrypted(data) {
		return nil, fmt.Errorf("GCM data too short or missing header: %d bytes", len(data))
	}
	salt := data[len(GCMMagic) : len(GCMMagic)+saltSize]
	nonce := data[len(GCMMagic)+saltSize : headerSize]
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, data[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plain, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, kdfRounds, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
