/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import "log"

/**
Verbose logs if not nil
*/
var verbose *log.Logger

/**
Use this function operate verbose and logging level of the bean factory.
*/

func Verbose(log *log.Logger) (prev *log.Logger) {
	prev, verbose = verbose, log
	return
}
