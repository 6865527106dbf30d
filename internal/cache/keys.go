package cache

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// Ключи детерминированы: кто инвалидирует, обязан считать их той же функцией,
// что и тот, кто положил значение.

func OrderKey(orderID string) string { return fmt.Sprintf("order:%s", orderID) }

func OrdersListKey(userID, filterHash string) string {
	return fmt.Sprintf("orders:%s:%s", userID, filterHash)
}

func OrdersListPrefix(userID string) string { return fmt.Sprintf("orders:%s:", userID) }

func RestaurantKey(restaurantID string) string { return fmt.Sprintf("restaurant:%s", restaurantID) }

func RestaurantsListKey(filterHash string) string { return fmt.Sprintf("restaurants:%s", filterHash) }

const RestaurantsListPrefix = "restaurants:"

func StatsKey(name string) string { return fmt.Sprintf("stats:%s", name) }

// FilterHash collapses filter parameters into a stable short hash. Keys are
// sorted first so the same filter always hashes the same regardless of the
// map iteration order.
func FilterHash(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(params[k]))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
