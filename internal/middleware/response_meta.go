package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufin-api/pkg/middleware/requestid"
)

// CacheHeader tells clients whether a catalog payload was served from cache.
const CacheHeader = "X-Cache"

const responseMetaKey = "response_meta"

type responseMeta struct {
	started time.Time
	values  map[string]interface{}
}

// WithResponseMeta starts the clock and gives handlers a metadata map that the
// response envelope carries.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{started: time.Now(), values: map[string]interface{}{}})
		c.Next()
	}
}

// SetCacheHit records whether the payload came from the catalog cache, both in
// the envelope meta and as the X-Cache header.
func SetCacheHit(c *gin.Context, hit bool) {
	metaOf(c).values["cache_hit"] = hit
	if hit {
		c.Header(CacheHeader, "HIT")
	} else {
		c.Header(CacheHeader, "MISS")
	}
}

// ResponseMeta stamps the request id and the time spent so far and returns the
// map for the envelope. Without WithResponseMeta the clock starts here.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	meta := metaOf(c)
	if id := requestid.Value(c); id != "" {
		meta.values["request_id"] = id
	}
	meta.values["processing_time_ms"] = time.Since(meta.started).Milliseconds()
	return meta.values
}

func metaOf(c *gin.Context) *responseMeta {
	if value, ok := c.Get(responseMetaKey); ok {
		if meta, ok := value.(*responseMeta); ok {
			return meta
		}
	}
	meta := &responseMeta{started: time.Now(), values: map[string]interface{}{}}
	c.Set(responseMetaKey, meta)
	return meta
}
