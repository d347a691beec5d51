package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// DispatchChannel carries new ride broadcasts for the whole driver pool.
const DispatchChannel = "rides:dispatch"

// InitRedis initializes the Redis client
func InitRedis(redisURL string) error {
	if redisURL == "" {
		redisURL = "redis://redis:6379" // Default Redis address for Docker
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %v", err)
	}

	RedisClient = redis.NewClient(opt)

	ctx := context.Background()
	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return nil
}

// SetDriverLocation stores driver location in Redis
func SetDriverLocation(ctx context.Context, driverID uint, lat, lng, heading float64) error {
	locationData := map[string]interface{}{
		"lat":     lat,
		"lng":     lng,
		"heading": heading,
		"updated": time.Now().Unix(),
	}

	data, err := json.Marshal(locationData)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("driver:location:%d", driverID)
	return RedisClient.Set(ctx, key, data, time.Hour).Err()
}

// SetDriverAvailability stores driver availability status
func SetDriverAvailability(ctx context.Context, driverID uint, isAvailable bool) error {
	key := fmt.Sprintf("driver:availability:%d", driverID)
	value := "true"
	if !isAvailable {
		value = "false"
	}
	return RedisClient.Set(ctx, key, value, time.Hour).Err()
}

// GetDriverAvailability retrieves driver availability status
func GetDriverAvailability(ctx context.Context, driverID uint) (bool, error) {
	if RedisClient == nil {
		return false, fmt.Errorf("redis not initialized")
	}
	key := fmt.Sprintf("driver:availability:%d", driverID)
	result, err := RedisClient.Get(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result == "true", nil
}

// PublishUserEvent mirrors a websocket event onto the user's channel.
// Fire-and-forget: a publish failure never affects the committed state
// change that produced the event.
func PublishUserEvent(userID uint, payload []byte) {
	if RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	RedisClient.Publish(ctx, UserChannel(userID), payload)
}

// PublishRideEvent mirrors a websocket event onto the ride's channel.
func PublishRideEvent(rideID uint, payload []byte) {
	if RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	RedisClient.Publish(ctx, RideChannel(rideID), payload)
}

// PublishDispatchEvent mirrors a driver-pool broadcast onto the shared
// dispatch channel.
func PublishDispatchEvent(payload []byte) {
	if RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	RedisClient.Publish(ctx, DispatchChannel, payload)
}
