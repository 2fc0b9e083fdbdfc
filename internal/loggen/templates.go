package loggen

import (
	"fmt"
	"strings"
)

// DefaultServices are the services emitted when none are configured.
var DefaultServices = []string{
	"database", "authentication", "access", "server",
	"api", "cache", "queue", "storage", "monitoring",
}

var templates = map[string]map[string][]string{
	"database": {
		"INFO": {
			"Database connection established successfully",
			"Query executed in {duration}ms",
			"Connection pool size: {pool_size}",
			"Database backup completed successfully",
			"Index optimization completed for table {table}",
			"Database statistics updated",
			"Connection from {source_ip} established",
		},
		"WARNING": {
			"Slow query detected: {query} took {duration}ms",
			"Database connection pool at {percentage}% capacity",
			"Index fragmentation detected on table {table}",
			"Database backup taking longer than expected",
			"Connection timeout for user {user_id}",
			"Database disk usage at {percentage}%",
		},
		"ERROR": {
			"Database connection failed: {error}",
			"Query execution failed: {error}",
			"Database backup failed: {error}",
			"Connection pool exhausted",
			"Database disk space critical",
			"Transaction rollback due to deadlock",
		},
		"CRITICAL": {
			"Database server unreachable",
			"Database corruption detected",
			"Critical data loss detected",
			"Database cluster split-brain detected",
		},
	},
	"authentication": {
		"INFO": {
			"User {user_id} logged in successfully",
			"Authentication token refreshed for user {user_id}",
			"Password reset request for user {user_id}",
			"Two-factor authentication enabled for user {user_id}",
			"Session created for user {user_id}",
			"User {user_id} logged out",
		},
		"WARNING": {
			"Multiple failed login attempts for user {user_id}",
			"Suspicious login pattern detected for user {user_id}",
			"Authentication token expired for user {user_id}",
			"Password reset rate limit exceeded",
			"Unusual login location for user {user_id}",
		},
		"ERROR": {
			"Authentication failed for user {user_id}: {error}",
			"Token validation failed: {error}",
			"Password reset failed: {error}",
			"Session creation failed: {error}",
			"User account locked: {user_id}",
		},
		"CRITICAL": {
			"Authentication service unavailable",
			"Security breach detected",
			"Mass account compromise detected",
			"Authentication database compromised",
		},
	},
	"access": {
		"INFO": {
			"API request from {source_ip} to {endpoint}",
			"File uploaded successfully: {filename}",
			"Resource accessed: {resource}",
			"API rate limit: {current}/{limit} requests",
			"Cache hit for key: {cache_key}",
			"Request processed in {duration}ms",
		},
		"WARNING": {
			"High API usage detected from {source_ip}",
			"Large file upload detected: {filename} ({size}MB)",
			"Unusual access pattern detected",
			"API rate limit approaching for {source_ip}",
			"Cache miss for frequently accessed key",
		},
		"ERROR": {
			"API request failed: {error}",
			"File upload failed: {error}",
			"Access denied for resource: {resource}",
			"API rate limit exceeded for {source_ip}",
			"Cache service unavailable",
		},
		"CRITICAL": {
			"API service unavailable",
			"File storage service down",
			"Access control system failure",
			"Mass unauthorized access detected",
		},
	},
	"server": {
		"INFO": {
			"Server started successfully on port {port}",
			"Health check passed",
			"Server metrics: CPU {cpu}%, Memory {memory}%",
			"Server configuration reloaded",
			"Server maintenance completed",
			"Load balancer health check passed",
		},
		"WARNING": {
			"High CPU usage detected: {cpu}%",
			"High memory usage detected: {memory}%",
			"Disk space low: {percentage}% remaining",
			"Server response time increased: {duration}ms",
			"Load balancer backend unhealthy",
		},
		"ERROR": {
			"Server error: {error}",
			"Service unavailable: {service}",
			"Server restart required",
			"Configuration error: {error}",
			"Load balancer backend failed",
		},
		"CRITICAL": {
			"Server crashed",
			"Critical service failure",
			"Server disk full",
			"Load balancer failure",
		},
	},
}

// genericTemplates covers services without a dedicated template set.
func genericTemplates(service string) map[string][]string {
	name := service
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return map[string][]string{
		"INFO":     {fmt.Sprintf("%s service running normally", name), fmt.Sprintf("%s operation completed", name)},
		"WARNING":  {fmt.Sprintf("%s service experiencing delays", name), fmt.Sprintf("%s resource usage high", name)},
		"ERROR":    {fmt.Sprintf("%s service error: {error}", name), fmt.Sprintf("%s operation failed", name)},
		"CRITICAL": {fmt.Sprintf("%s service down", name), fmt.Sprintf("%s critical failure", name)},
	}
}

var errorReasons = []string{
	"Connection timeout", "Invalid credentials", "Resource not found",
	"Permission denied", "Internal server error", "Network unreachable",
}

var (
	endpoints    = []string{"/api/users", "/api/orders", "/api/products", "/api/auth"}
	ports        = []int{3000, 8000, 8080, 9000}
	environments = []string{"production", "staging", "development"}
	regions      = []string{"us-east-1", "us-west-2", "eu-west-1", "ap-southeast-1"}
)
