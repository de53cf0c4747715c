package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockRetryInterval = 200 * time.Millisecond

// unlockScript 只删除自己持有的锁
var unlockScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('del', KEYS[1])
end
return 0`)

// Touch 写入占位值并刷新过期时间，用于在线 / 正在查看之类的心跳标记
func Touch(ctx context.Context, key string, ttl time.Duration) error {
	return Rdb.Set(ctx, key, "1", ttl).Err()
}

// Exists 键是否存在
func Exists(ctx context.Context, key string) (bool, error) {
	n, err := Rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetOnce 键不存在时写入，返回本次是否写入成功；ttl 内的重复调用都返回 false
func SetOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return Rdb.SetNX(ctx, key, "1", ttl).Result()
}

// Del 删除键，键不存在时不报错
func Del(ctx context.Context, keys ...string) error {
	return Rdb.Del(ctx, keys...).Err()
}

// TryLock 抢占分布式锁，retryTimes 为 -1 时一直重试直到 ctx 结束
func TryLock(ctx context.Context, key string, token string, ttl time.Duration, retryTimes int) (bool, error) {
	for i := 0; retryTimes == -1 || i < retryTimes; i++ {
		ok, err := Rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil || ok {
			return ok, err
		}
		if retryTimes != -1 && i+1 >= retryTimes {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
	return false, nil
}

// UnLock 释放 token 对应的锁，锁已过期或被他人持有时不做任何事
func UnLock(ctx context.Context, key string, token string) error {
	return unlockScript.Run(ctx, Rdb, []string{key}, token).Err()
}

// Publish 发布消息到频道
func Publish(ctx context.Context, channel string, message any) error {
	return Rdb.Publish(ctx, channel, message).Err()
}

// Subscribe 订阅一个或多个频道
func Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return Rdb.Subscribe(ctx, channels...)
}
