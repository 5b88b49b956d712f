package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// CollectionFields 提供集合名/缓存文件/模式字段，供缓存相关日志复用。
func CollectionFields(action, collection, file, mode string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"collection": collection,
		"cache_file": file,
		"mode":       mode,
	}
}

// RequestFields 提供请求 ID、集合与响应状态字段，供 HTTP 访问日志复用。
func RequestFields(requestID, collection, method, path string, status int) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"collection": collection,
		"method":     method,
		"path":       path,
		"status":     status,
	}
}
