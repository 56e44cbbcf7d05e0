package backend

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/steppath/internal/model"
)

// accessTokenClaims はバックエンドが発行するアクセストークン（JWT）のクレーム。
type accessTokenClaims struct {
	Email        string `json:"email"`
	UserMetadata struct {
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
	AppMetadata struct {
		Provider string `json:"provider"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// ParseAccessToken はアクセストークンのクレームからIdentityと有効期限を読み取る。
//
// 署名検証は行わない。トークンの真正性はバックエンドとのTLS接続で担保されており、
// クライアント側の用途は有効期限の判定とIdentityメタデータの参照に限られる。
func ParseAccessToken(accessToken string) (*model.Identity, time.Time, error) {
	claims := &accessTokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse access token claims: %w", err)
	}

	if claims.Subject == "" {
		return nil, time.Time{}, fmt.Errorf("access token has no subject claim")
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	provider := claims.AppMetadata.Provider
	if provider == "" {
		provider = "email"
	}

	return &model.Identity{
		ID:          claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.UserMetadata.FullName,
		Provider:    provider,
	}, expiresAt, nil
}
