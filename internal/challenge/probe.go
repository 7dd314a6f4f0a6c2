package challenge

// ProbeScript is the client-side automation probe embedded in the challenge
// page. It scores independent signals (webdriver flag, automation globals,
// chrome-object consistency, plugin-array anomalies, console-call timing
// variance) and exposes window._checkAutomation() resolving to
// {detected, score, checks}. The summed score is reported to the server
// as-is; only the server-side threshold contract is authoritative.
const ProbeScript = `
(function() {
    'use strict';

    var detected = false;
    var detectionComplete = false;

    function detectDevtoolsProtocol() {
        return new Promise(function(resolve) {
            try {
                var err = new Error();
                var stack = err.stack || '';
                if (stack.indexOf('puppeteer') !== -1 ||
                    stack.indexOf('playwright') !== -1 ||
                    stack.indexOf('__puppeteer_evaluation_script__') !== -1) {
                    resolve(true);
                    return;
                }
            } catch(e) {}

            var timings = [];
            var iterations = 5;

            function measureConsole(i) {
                if (i >= iterations) {
                    var sum = 0;
                    for (var j = 0; j < timings.length; j++) {
                        sum += timings[j];
                    }
                    var avg = sum / timings.length;
                    var variance = 0;
                    for (var k = 0; k < timings.length; k++) {
                        variance += Math.pow(timings[k] - avg, 2);
                    }
                    variance = variance / timings.length;
                    resolve(variance > 0.8);
                    return;
                }
                var start = performance.now();
                console.debug('');
                var end = performance.now();
                timings.push(end - start);
                setTimeout(function() { measureConsole(i + 1); }, 0);
            }

            measureConsole(0);
        });
    }

    function checkWebDriver() {
        return navigator.webdriver === true;
    }

    function checkAutomationProperties() {
        var suspicious = [
            'callPhantom', '_phantom', '__nightmare', '_selenium',
            'callSelenium', '_Selenium_IDE_Recorder', '__webdriver_evaluate',
            '__selenium_evaluate', '__webdriver_script_function',
            '__webdriver_script_func', '__webdriver_script_fn',
            '__fxdriver_evaluate', '__driver_unwrapped',
            '__webdriver_unwrapped', '__driver_evaluate',
            '__selenium_unwrapped', '__fxdriver_unwrapped',
            'domAutomation', 'domAutomationController'
        ];
        for (var i = 0; i < suspicious.length; i++) {
            if (window[suspicious[i]] !== undefined) {
                return true;
            }
        }
        if (document.documentElement) {
            var attrs = document.documentElement.getAttributeNames();
            for (var j = 0; j < attrs.length; j++) {
                if (attrs[j].indexOf('webdriver') !== -1 ||
                    attrs[j].indexOf('selenium') !== -1 ||
                    attrs[j].indexOf('driver') !== -1) {
                    return true;
                }
            }
        }
        return false;
    }

    function checkChromeObject() {
        if (window.chrome) {
            if (!window.chrome.runtime) {
                return 0.3;
            }
            if (!window.chrome.csi || !window.chrome.loadTimes) {
                return 0.2;
            }
        } else if (/Chrome/.test(navigator.userAgent)) {
            return 0.8;
        }
        return 0;
    }

    function checkPlugins() {
        if (navigator.plugins && navigator.plugins.length === 0) {
            if (/Chrome|Firefox/.test(navigator.userAgent)) {
                return 0.4;
            }
        }
        try {
            if (navigator.plugins &&
                Object.prototype.toString.call(navigator.plugins) !== '[object PluginArray]') {
                return 0.6;
            }
        } catch(e) {
            return 0.3;
        }
        return 0;
    }

    window._checkAutomation = function() {
        return new Promise(function(resolve) {
            if (detectionComplete) {
                resolve({ detected: detected, score: window._automationScore || 0, checks: window._automationChecks || [] });
                return;
            }

            var score = 0;
            var checks = [];

            if (checkWebDriver()) {
                score += 1.0;
                checks.push('webdriver');
            }
            if (checkAutomationProperties()) {
                score += 0.9;
                checks.push('automation_props');
            }
            var chromeScore = checkChromeObject();
            score += chromeScore;
            if (chromeScore > 0) checks.push('chrome_obj');

            var pluginScore = checkPlugins();
            score += pluginScore;
            if (pluginScore > 0) checks.push('plugins');

            detectDevtoolsProtocol().then(function(protocolResult) {
                if (protocolResult) {
                    score += 0.7;
                    checks.push('cdp_timing');
                }

                detected = score >= 0.8;
                window._automationScore = score;
                window._automationChecks = checks;
                detectionComplete = true;

                resolve({ detected: detected, score: score, checks: checks });
            });
        });
    };

    if (document.readyState === 'complete') {
        window._checkAutomation();
    } else {
        window.addEventListener('load', function() {
            window._checkAutomation();
        });
    }
})();
`
