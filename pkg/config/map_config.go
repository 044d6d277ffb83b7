package config

import (
	"fmt"
	"strconv"
	"sync"
)

// MapConfig is an in-memory Configer used in tests.
type MapConfig struct {
	configValues sync.Map
}

func NewMapConfig(entries map[string]string) *MapConfig {
	c := &MapConfig{}

	for key, entry := range entries {
		c.configValues.Store(key, entry)
	}

	return c
}

func (c *MapConfig) LoadFromPath(_ string) error {
	return fmt.Errorf("LoadFromPath not supported for MapConfig")
}

func (c *MapConfig) GetKey(key string) string {
	v, ok := c.configValues.Load(key)
	if !ok || v == nil {
		return ""
	}

	return v.(string)
}

func (c *MapConfig) MustGetKey(key string) string {
	v := c.GetKey(key)
	if v == "" {
		panic(fmt.Sprintf("no such required config key: '%s'", key))
	}

	return v
}

func (c *MapConfig) GetKeyWithDefault(key, defaultValue string) string {
	v := c.GetKey(key)
	if v == "" {
		return defaultValue
	}

	return v
}

func (c *MapConfig) GetIntKey(key string) int {
	v := c.GetKey(key)
	if v == "" {
		return 0
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}

	return n
}

func (c *MapConfig) GetIntKeyWithDefault(key string, defaultValue int) int {
	v := c.GetKey(key)
	if v == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}

	return n
}
