/**
 * Copyright (c) 2023 wetrycode
 *
 * This software is released under the MIT License.
 * https://opensource.org/licenses/MIT
 */

package api

// APIVersion 管理接口版本
const APIVersion = "v0.1.0"

type Response struct {
	APIVersion string      `json:"api"`
	Code       int         `json:"code"`
	Message    string      `json:"msg"`
	Data       interface{} `json:"data"`
}

// Response 统一的响应格式
func (g *Gin) Response(httpCode, errCode int, data interface{}) {
	g.Ctx.JSON(httpCode, Response{
		APIVersion: APIVersion,
		Code:       errCode,
		Message:    GetMsg(errCode),
		Data:       data,
	})
}
