package cron

import (
	"testing"

	cronv3 "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"

	"github.com/customeros/mailvault/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func TestNewCronManager(t *testing.T) {
	// Arrange
	log := getLogger()

	// Act
	cm := NewCronManager(log, nil, nil)

	// Assert
	assert.NotNil(t, cm)
	assert.Equal(t, log, cm.log)
	assert.NotNil(t, cm.jobIDs)
}

func TestCronManager_RegistersConfiguredJobs(t *testing.T) {
	// Arrange
	log := getLogger()
	cm := NewCronManager(log, nil, nil)

	mockCron := cronv3.New(cronv3.WithSeconds())

	// Act - register jobs manually
	heartbeatId, err := mockCron.AddFunc("0 * * * * *", func() {})
	assert.NoError(t, err)
	cm.jobIDs["heartbeat"] = heartbeatId

	syncId, err := mockCron.AddFunc("0 */15 * * * *", func() {})
	assert.NoError(t, err)
	cm.jobIDs["mailbox_sync"] = syncId

	sweepId, err := mockCron.AddFunc("0 0 3 * * *", func() {})
	assert.NoError(t, err)
	cm.jobIDs["temp_sweep"] = sweepId

	cm.cron = mockCron

	// Assert
	assert.NotNil(t, cm.cron)
	assert.Equal(t, 3, len(cm.jobIDs))
}

func TestCronManager_Stop(t *testing.T) {
	// Arrange
	log := getLogger()
	cm := NewCronManager(log, nil, nil)

	mockCron := cronv3.New()
	mockCron.Start()
	cm.cron = mockCron

	// Act
	cm.Stop()

	// Assert
	select {
	case <-cm.stopCh:
		// Channel is closed as expected
	default:
		t.Error("Stop channel was not closed")
	}
}
