package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/DevSwayam/faucet-attenomics/internal/config"
)

// AdminMiddleware закрывает админ-маршруты статическим общим секретом.
// Секрет принимается из заголовка x-admin-key, поля тела adminKey или
// query-параметра adminKey и сравнивается за константное время.
type AdminMiddleware struct {
	key           string
	keyBcryptHash string
}

// NewAdminMiddleware создает middleware админ-доступа
func NewAdminMiddleware(cfg config.AdminConfig) *AdminMiddleware {
	return &AdminMiddleware{
		key:           cfg.Key,
		keyBcryptHash: cfg.KeyBcryptHash,
	}
}

// adminKeyBody — тело с полем adminKey; остальные поля перечитает обработчик
type adminKeyBody struct {
	AdminKey string `json:"adminKey"`
}

// RequireAdmin проверяет админ-ключ и прерывает запрос при несовпадении
func (m *AdminMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		supplied := c.GetHeader("x-admin-key")
		if supplied == "" {
			supplied = c.Query("adminKey")
		}
		if supplied == "" && c.Request.Body != nil {
			// Тело читается без потребления: ShouldBindBodyWith кеширует его
			// для последующего чтения обработчиком
			var body adminKeyBody
			if err := c.ShouldBindBodyWithJSON(&body); err == nil {
				supplied = body.AdminKey
			}
		}

		if !m.Verify(supplied) {
			log.Printf("[AdminMiddleware] Отклонен админ-запрос %s %s с IP %s", c.Request.Method, c.Request.URL.Path, c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "admin_key_invalid"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Verify сравнивает предъявленный секрет с настроенным.
// При наличии bcrypt-хеша сравнение идет через bcrypt, иначе —
// константное по времени побайтовое равенство.
func (m *AdminMiddleware) Verify(supplied string) bool {
	if supplied == "" {
		return false
	}
	if m.keyBcryptHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(m.keyBcryptHash), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(m.key), []byte(supplied)) == 1
}
