package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess     = 0
	CodeParamError  = 400
	CodeServerError = 500
)

// 业务错误码，与错误分类一一对应
const (
	CodeLockNotAcquired     = 1001 // 锁等待超时，稍后重试
	CodeRateLimited         = 1002 // 请求过于频繁
	CodeMinimumCharge       = 1003 // 低于最低充值金额
	CodeInsufficientBalance = 1004 // 余额不足
	CodeInsufficientStock   = 1005 // 库存不足
	CodeCouponExhausted     = 1006 // 券已发完
	CodeCouponAlreadyIssued = 1007 // 重复领取
	CodeCouponNotIssued     = 1008 // 未领取
	CodeCouponInvalid       = 1009 // 券过期或不可用
	CodePaymentDuplicated   = 1010 // 一单一付
	CodeInvalidOrderState   = 1011 // 订单状态不允许
	CodeConflictExceeded    = 1012 // 乐观锁重试用尽
	CodeNotFound            = 1013
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
