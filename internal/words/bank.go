// Package words 提供静态词库以及随机候选词选取。
package words

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
)

//go:embed words.json
var defaultWords []byte

// Bank 只读词库，加载后不再修改，可并发使用
type Bank struct {
	words []string
	index map[string]struct{}
}

// New 使用给定词列表创建词库，统一转为小写并去重
func New(list []string) (*Bank, error) {
	b := &Bank{index: make(map[string]struct{}, len(list))}
	for _, w := range list {
		w = normalize(w)
		if w == "" {
			continue
		}
		if _, ok := b.index[w]; ok {
			continue
		}
		b.index[w] = struct{}{}
		b.words = append(b.words, w)
	}
	if len(b.words) == 0 {
		return nil, fmt.Errorf("词库为空")
	}
	sort.Strings(b.words)
	return b, nil
}

// Load 从JSON文件加载词库，path为空时使用内置词库
func Load(path string) (*Bank, error) {
	data := defaultWords
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取词库文件失败: %w", err)
		}
		data = raw
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("解析词库失败: %w", err)
	}
	return New(list)
}

// Default 返回内置词库
func Default() *Bank {
	b, err := Load("")
	if err != nil {
		panic(err)
	}
	return b
}

// Choices 随机选取n个互不重复的候选词，exclude中的词尽量不再出现。
// 排除后剩余不足n个时回退到整个词库。
func (b *Bank) Choices(n int, exclude ...string) []string {
	if n <= 0 {
		return nil
	}

	pool := b.words
	if len(exclude) > 0 {
		skip := make(map[string]struct{}, len(exclude))
		for _, w := range exclude {
			skip[normalize(w)] = struct{}{}
		}
		filtered := make([]string, 0, len(b.words))
		for _, w := range b.words {
			if _, ok := skip[w]; !ok {
				filtered = append(filtered, w)
			}
		}
		if len(filtered) >= n {
			pool = filtered
		}
	}

	available := make([]string, len(pool))
	copy(available, pool)
	if n > len(available) {
		n = len(available)
	}

	// 部分 Fisher-Yates
	for i := 0; i < n; i++ {
		j := i + rand.Intn(len(available)-i)
		available[i], available[j] = available[j], available[i]
	}
	return available[:n]
}

// Contains 判断词是否在词库中（大小写不敏感）
func (b *Bank) Contains(word string) bool {
	_, ok := b.index[normalize(word)]
	return ok
}

// Words 返回词库副本
func (b *Bank) Words() []string {
	out := make([]string, len(b.words))
	copy(out, b.words)
	return out
}

// Len 词库大小
func (b *Bank) Len() int {
	return len(b.words)
}

func normalize(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}
