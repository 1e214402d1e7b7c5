// auth.go — проверка JWT-токенов на запросах к API сбора.
// Подписи валидируются по JWKS провайдера идентификации (RS256),
// из claims извлекаются субъект, права доступа и арендатор.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/arturkryukov/arkhiv/collect-module/internal/api/errors"
)

// contextKey — отдельный тип ключей контекста, чтобы не пересекаться
// с ключами других пакетов.
type contextKey string

const (
	// ContextKeySubject — субъект (sub) проверенного токена.
	ContextKeySubject contextKey = "auth_subject"
	// ContextKeyScopes — права доступа из проверенного токена.
	ContextKeyScopes contextKey = "auth_scopes"
	// ContextKeyTenant — арендатор из проверенного токена.
	ContextKeyTenant contextKey = "auth_tenant"
)

// Claims — ожидаемое содержимое токена.
//
// Права доступа принимаются в двух вариантах: стандартный OAuth2
// claim "scope" (строка через пробел) и массив "scopes". Арендатор
// передаётся claim-ом "tenant"; токен без него считается
// межарендным и проходит проверку RequireTenant.
type Claims struct {
	jwt.RegisteredClaims
	ScopeString string   `json:"scope"`
	ScopeArray  []string `json:"scopes"`
	Tenant      *int     `json:"tenant"`
}

// Scopes объединяет оба варианта прав в один список.
func (c *Claims) Scopes() []string {
	var result []string
	if c.ScopeString != "" {
		result = append(result, strings.Split(c.ScopeString, " ")...)
	}
	return append(result, c.ScopeArray...)
}

// JWTAuth держит источник ключей и параметры проверки токенов.
type JWTAuth struct {
	keys      keyfunc.Keyfunc
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// JWTAuthConfig — параметры подключения к JWKS и проверки токенов.
type JWTAuthConfig struct {
	// URL JWKS endpoint провайдера идентификации
	JWKSURL string
	// Дополнительный CA-сертификат для соединения с JWKS (опционально)
	CACertPath string
	// Отключить проверку TLS-сертификата JWKS endpoint
	TLSSkipVerify bool
	// Таймаут HTTP-запросов к JWKS
	ClientTimeout time.Duration
	// Период фонового обновления набора ключей
	RefreshInterval time.Duration
	// Допуск расхождения часов при проверке exp/nbf
	JWTLeeway time.Duration
}

// NewJWTAuth подключается к JWKS endpoint и возвращает готовый middleware.
// Первый запрос к JWKS не обязан успеть до старта сервера: ключи
// дотянутся фоновым обновлением, поэтому модуль сбора может подниматься
// одновременно с провайдером идентификации.
func NewJWTAuth(authCfg JWTAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	httpClient, err := jwksHTTPClient(authCfg)
	if err != nil {
		return nil, err
	}

	if authCfg.CACertPath != "" {
		logger.Info("CA-сертификат добавлен в пул доверия",
			slog.String("ca_cert", authCfg.CACertPath),
		)
	}

	storage, err := jwkset.NewStorageFromHTTP(authCfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           authCfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", authCfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(kf, authCfg.JWTLeeway, logger), nil
}

// NewJWTAuthWithKeyfunc собирает middleware вокруг готовой keyfunc.
// Применяется в тестах, где набор ключей формируется локально.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, jwtLeeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		keys:      kf,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// jwksHTTPClient настраивает клиента для обращения к JWKS endpoint:
// таймаут, при необходимости — свой CA и отключение проверки TLS.
func jwksHTTPClient(authCfg JWTAuthConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: authCfg.TLSSkipVerify, //nolint:gosec // настраивается через CM_TLS_SKIP_VERIFY
	}

	if authCfg.CACertPath != "" {
		caCert, err := os.ReadFile(authCfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", authCfg.CACertPath, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		pool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = pool
	}

	return &http.Client{
		Timeout:   authCfg.ClientTimeout,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}, nil
}

// Middleware проверяет Bearer-токен запроса. Валидный токен кладёт в
// контекст субъект, права и арендатора; любой дефект токена — 401.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				apierrors.Unauthorized(w, "Ожидается заголовок Authorization: Bearer <token>")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, j.keys.KeyfuncCtx(r.Context()),
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			)
			if err != nil || !token.Valid {
				if err != nil {
					j.logger.Debug("JWT валидация не пройдена",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)
				}
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySubject, subject)
			ctx = context.WithValue(ctx, ContextKeyScopes, claims.Scopes())
			if claims.Tenant != nil {
				ctx = context.WithValue(ctx, ContextKeyTenant, *claims.Tenant)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken достаёт токен из заголовка Authorization.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequireScope пропускает запрос только при наличии указанного права.
// Ставится после JWTAuth.Middleware().
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes, ok := r.Context().Value(ContextKeyScopes).([]string)
			if !ok {
				apierrors.Forbidden(w, "Отсутствуют scopes в токене")
				return
			}
			for _, s := range scopes {
				if s == scope {
					next.ServeHTTP(w, r)
					return
				}
			}
			apierrors.Forbidden(w, "Недостаточно прав: требуется scope "+scope)
		})
	}
}

// RequireTenant сверяет арендатора токена с арендатором модуля.
// Токен без claim-а tenant проходит; несовпадение — 403.
// Ставится после JWTAuth.Middleware().
func RequireTenant(expected int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, ok := TenantFromContext(r.Context())
			if ok && tenant != expected {
				apierrors.Forbidden(w, "Токен выдан для другого арендатора: "+strconv.Itoa(tenant))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SubjectFromContext возвращает sub проверенного токена,
// пустую строку — если аутентификация не выполнялась.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}

// ScopesFromContext возвращает права проверенного токена либо nil.
func ScopesFromContext(ctx context.Context) []string {
	scopes, _ := ctx.Value(ContextKeyScopes).([]string)
	return scopes
}

// TenantFromContext возвращает арендатора из токена и признак того,
// что claim присутствовал.
func TenantFromContext(ctx context.Context) (int, bool) {
	tenant, ok := ctx.Value(ContextKeyTenant).(int)
	return tenant, ok
}

// Close останавливает фоновое обновление JWKS.
func (j *JWTAuth) Close() {
	// keyfunc v3 не требует явной остановки для HTTP-хранилища
}
