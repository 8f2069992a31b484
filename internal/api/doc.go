// Package api 提供对外 REST 接口：插件目录与输入表单查询、快速记录提交、
// 数据记录检索与统计、能力授权管理以及 CSV 导出下载。
package api
