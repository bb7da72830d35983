// Copyright 2024-2025 The rangehub Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package relay

import (
	"context"
	"testing"

	"github.com/rangelab/rangehub/common"
	"github.com/rangelab/rangehub/core"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeSubjectToken(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("device-0", sanitizeSubjectToken("device-0"))
	assert.Equal("bay_a_plate_3", sanitizeSubjectToken("bay.a plate.3"))
	assert.Equal("d__e", sanitizeSubjectToken("d*>e"))
}

func TestRelayRequiresSubjectPrefix(t *testing.T) {
	assert := assert.New(t)

	_, err := GetTelemetryRelay(
		context.Background(), nil, core.NatsClient{}, common.RelayConfig{},
	)
	assert.NotNil(err)
}
