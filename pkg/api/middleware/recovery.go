package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/mtwebit/tasker/pkg/api/dto"
)

// Recovery 捕获HTTP处理器的panic并返回统一的500响应
// 引擎边界已经保证任务执行不会panic，这里兜底处理器自身的故障
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("💥 HTTP处理器panic: %s %s: %v\n%s",
					c.Request.Method, c.Request.URL.Path, r, debug.Stack())
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					dto.NewErrorResponse(500, "服务内部错误"))
			}
		}()
		c.Next()
	}
}
