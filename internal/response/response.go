// Package response 统一的 {code, message, data} 返回结构
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Body struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Message: "success", Data: data})
}

// Fail code 与 HTTP 状态码保持一致
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, Body{Code: status, Message: message})
}

func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Body{Code: status, Message: message})
}
