// Package prefs 提供用户偏好的键值存储：权限授权记录、撤销墓碑、
// 仪表盘成员列表等小块状态都通过它持久化。
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store 是字符串键值存储的统一抽象。实现必须支持并发访问。
type Store interface {
	// Get 返回键对应的值。键不存在时 ok 为 false，不视为错误。
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set 写入或覆盖键值。
	Set(ctx context.Context, key, value string) error
	// Delete 删除键。键不存在时为空操作。
	Delete(ctx context.Context, key string) error
	// List 返回指定前缀下的全部键值对。
	List(ctx context.Context, prefix string) (map[string]string, error)
	// Close 释放底层连接。
	Close() error
}

// SetJSON 将对象序列化后写入。
func SetJSON(ctx context.Context, store Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化偏好 %s 失败: %w", key, err)
	}
	return store.Set(ctx, key, string(data))
}

// GetJSON 读取并反序列化键值。键不存在时返回 false。
func GetJSON(ctx context.Context, store Store, key string, v any) (bool, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("解析偏好 %s 失败: %w", key, err)
	}
	return true, nil
}

// StringList 维护一个去重且保持插入顺序的成员列表，
// 例如仪表盘上展示哪些插件。
type StringList struct {
	store Store
	key   string
}

// NewStringList 绑定存储中的一个列表键。
func NewStringList(store Store, key string) *StringList {
	return &StringList{store: store, key: key}
}

// Members 返回当前列表内容。
func (l *StringList) Members(ctx context.Context) ([]string, error) {
	var members []string
	if _, err := GetJSON(ctx, l.store, l.key, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// Add 追加成员，已存在时不变。
func (l *StringList) Add(ctx context.Context, member string) error {
	members, err := l.Members(ctx)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m == member {
			return nil
		}
	}
	return SetJSON(ctx, l.store, l.key, append(members, member))
}

// Remove 移除成员，不存在时为空操作。
func (l *StringList) Remove(ctx context.Context, member string) error {
	members, err := l.Members(ctx)
	if err != nil {
		return err
	}
	kept := members[:0]
	for _, m := range members {
		if m != member {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(members) {
		return nil
	}
	return SetJSON(ctx, l.store, l.key, kept)
}
