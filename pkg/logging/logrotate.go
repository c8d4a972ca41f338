package logging

import "fmt"

// GenerateLogrotateConfig creates a logrotate configuration for a component
func GenerateLogrotateConfig(component string) string {
	return fmt.Sprintf(`# Logrotate configuration for convertd %s
# Install: sudo cp this file to /etc/logrotate.d/convertd-%s

/var/log/convertd/%s/*.log {
    daily
    rotate 14
    compress
    delaycompress
    missingok
    notifempty
    create 0644 convertd convertd

    # copytruncate keeps the open file handle of the running server valid
    copytruncate
}
`, component, component, component)
}
