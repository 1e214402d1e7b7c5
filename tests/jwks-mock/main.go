// jwks-mock — заглушка провайдера идентификации для тестовой среды
// модуля сбора. При старте создаёт подписывающий RSA-ключ, отдаёт его
// публичную часть по GET /jwks и выписывает токены по POST /token.
// Токены несут claims, которые ожидает auth middleware модуля:
// sub, scopes и tenant.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	signingKeyID = "mock-signer"
	defaultTTL   = time.Hour
)

// settings читаются из окружения при старте.
type settings struct {
	Port    string // MOCK_PORT — порт HTTP-сервера (default: 8080)
	TLSCert string // MOCK_TLS_CERT — TLS-сертификат (пусто — обычный HTTP)
	TLSKey  string // MOCK_TLS_KEY — приватный ключ TLS
	KeyBits int    // MOCK_KEY_SIZE — размер подписывающего ключа (default: 2048)
}

func loadSettings() settings {
	s := settings{
		Port:    "8080",
		TLSCert: os.Getenv("MOCK_TLS_CERT"),
		TLSKey:  os.Getenv("MOCK_TLS_KEY"),
		KeyBits: 2048,
	}
	if v := os.Getenv("MOCK_PORT"); v != "" {
		s.Port = v
	}
	if v := os.Getenv("MOCK_KEY_SIZE"); v != "" {
		if bits, err := strconv.Atoi(v); err == nil && bits >= 1024 {
			s.KeyBits = bits
		}
	}
	return s
}

// issuer хранит подписывающий ключ и готовый JWKS-документ.
type issuer struct {
	key    *rsa.PrivateKey
	jwks   []byte
	logger *slog.Logger
}

func newIssuer(bits int, logger *slog.Logger) (*issuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	pub := &key.PublicKey
	doc, err := json.Marshal(map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": signingKeyID,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return &issuer{key: key, jwks: doc, logger: logger}, nil
}

// handleJWKS отдаёт набор публичных ключей (RFC 7517).
func (i *issuer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(i.jwks)
}

// tokenRequest — параметры выписываемого токена.
type tokenRequest struct {
	Sub        string   `json:"sub"`         // субъект (обязательно)
	Scopes     []string `json:"scopes"`      // права доступа (обязательно)
	Tenant     *int     `json:"tenant"`      // арендатор (опционально)
	TTLSeconds int      `json:"ttl_seconds"` // время жизни (default: 3600)
}

// issuedClaims повторяют формат, принимаемый модулем сбора.
type issuedClaims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
	Tenant *int     `json:"tenant,omitempty"`
}

// handleToken выписывает подписанный RS256-токен по параметрам запроса.
func (i *issuer) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Невалидный JSON: "+err.Error())
		return
	}
	if req.Sub == "" {
		writeError(w, http.StatusBadRequest, "Поле 'sub' обязательно")
		return
	}
	if len(req.Scopes) == 0 {
		writeError(w, http.StatusBadRequest, "Поле 'scopes' обязательно (массив строк)")
		return
	}

	ttl := defaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, issuedClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Sub,
			Issuer:    "jwks-mock",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scopes: req.Scopes,
		Tenant: req.Tenant,
	})
	token.Header["kid"] = signingKeyID

	signed, err := token.SignedString(i.key)
	if err != nil {
		i.logger.Error("Ошибка подписи токена", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Ошибка генерации токена")
		return
	}

	i.logger.Info("Токен выдан",
		slog.String("sub", req.Sub),
		slog.Int("scopes_count", len(req.Scopes)),
		slog.String("ttl", ttl.String()),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": signed})
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func main() {
	cfg := loadSettings()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Генерация подписывающего ключа", slog.Int("key_bits", cfg.KeyBits))
	iss, err := newIssuer(cfg.KeyBits, logger)
	if err != nil {
		logger.Error("Инициализация не удалась", slog.String("error", err.Error()))
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /jwks", iss.handleJWKS)
	mux.HandleFunc("POST /token", iss.handleToken)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	addr := ":" + cfg.Port
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		logger.Info("jwks-mock запущен (HTTPS)", slog.String("addr", addr), slog.String("tls_cert", cfg.TLSCert))
		err = http.ListenAndServeTLS(addr, cfg.TLSCert, cfg.TLSKey, mux)
	} else {
		logger.Warn("TLS не настроен, jwks-mock работает по HTTP", slog.String("addr", addr))
		err = http.ListenAndServe(addr, mux)
	}
	if err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
