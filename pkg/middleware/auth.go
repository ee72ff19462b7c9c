package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// GenerateAdminToken generates a secure random token for admin API authentication
func GenerateAdminToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// AdminAuthConfig configures AdminAuthMiddleware
type AdminAuthConfig struct {
	// Token is the static bearer token
	Token string
	// JWTSecret enables HS256 JWT bearer tokens when set
	JWTSecret string
	// JWTIssuer is required as the iss claim when set
	JWTIssuer string
}

// AdminAuthMiddleware validates bearer tokens for the admin API. A request is
// accepted with the static token or, when a JWT secret is configured, with a
// valid HS256 JWT whose subject is then stored under "admin_subject".
func AdminAuthMiddleware(cfg AdminAuthConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(401, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(401, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		providedToken := strings.TrimSpace(parts[1])
		if providedToken == "" {
			c.JSON(401, gin.H{"error": "Token required"})
			c.Abort()
			return
		}

		// Constant-time comparison to prevent timing attacks
		if cfg.Token != "" && subtle.ConstantTimeCompare([]byte(providedToken), []byte(cfg.Token)) == 1 {
			c.Set("admin_subject", "token")
			c.Next()
			return
		}

		if cfg.JWTSecret != "" {
			subject, err := validateAdminJWT(providedToken, cfg)
			if err == nil {
				c.Set("admin_subject", subject)
				c.Next()
				return
			}
			logger.Debug("Admin JWT rejected", zap.Error(err))
		}

		logger.Warn("Invalid admin token attempt", zap.String("client_ip", c.ClientIP()))
		c.JSON(401, gin.H{"error": "Invalid token"})
		c.Abort()
	}
}

func validateAdminJWT(tokenString string, cfg AdminAuthConfig) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
